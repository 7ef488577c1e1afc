package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// tomlBackend stores config in a TOML file with one table per key section:
//
//	[server]
//	port = 4100
type tomlBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	b, err := newTOMLBackend(ConfigFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	return b
}

// newTOMLBackend loads path. A missing file is an empty config. On a parse
// error the returned backend is empty and still usable for writes.
func newTOMLBackend(path string) (*tomlBackend, error) {
	b := &tomlBackend{path: path, data: make(map[string]any)}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return b, nil
	}
	if _, err := toml.DecodeFile(path, &b.data); err != nil {
		b.data = make(map[string]any)
		return b, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return b, nil
}

// ConfigFilePath returns $XDG_CONFIG_HOME/parley/config.toml.
func ConfigFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "parley", "config.toml")
}

func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", key
	}
	return section, name
}

func (b *tomlBackend) lookup(key string) (any, bool) {
	section, name := splitKey(key)
	if section == "" {
		v, ok := b.data[name]
		return v, ok
	}
	table, ok := b.data[section].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := table[name]
	return v, ok
}

func (b *tomlBackend) put(key string, v any) {
	section, name := splitKey(key)
	if section == "" {
		b.data[name] = v
		return
	}
	table, ok := b.data[section].(map[string]any)
	if !ok {
		table = make(map[string]any)
		b.data[section] = table
	}
	table[name] = v
}

func (b *tomlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(b.data); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

func (b *tomlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (b *tomlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *tomlBackend) SetString(key, val string) error {
	b.put(key, val)
	return b.save()
}

func (b *tomlBackend) SetInt(key string, val int) error {
	b.put(key, int64(val))
	return b.save()
}

func (b *tomlBackend) Delete(key string) error {
	section, name := splitKey(key)
	if section == "" {
		delete(b.data, name)
	} else if table, ok := b.data[section].(map[string]any); ok {
		delete(table, name)
		if len(table) == 0 {
			delete(b.data, section)
		}
	}
	return b.save()
}

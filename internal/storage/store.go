package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite"

	"github.com/kalambet/parley/internal/chat"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const migrationsTable = "goose_migrations"

// sqlite keeps timestamps as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Options selects the backing database.
type Options struct {
	// Driver is DriverSQLite (default) or DriverPostgres.
	Driver string
	// DataDir holds parley.db for sqlite. ":memory:" opens an in-memory database.
	DataDir string
	// DSN is the Postgres connection string.
	DSN string
}

// Store is a Repository backed by database/sql.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured database and applies pending migrations.
func Open(opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(opts.DataDir)
	case DriverPostgres:
		db, err = openPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func openSQLite(dataDir string) (*sql.DB, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if dataDir == "" {
			return nil, fmt.Errorf("sqlite storage requires a data directory")
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "parley.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection avoids "database is locked" and keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	return db, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres storage requires a DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

func (s *Store) provider() (*goose.Provider, error) {
	dialect := database.DialectSQLite3
	dir := "migrations/sqlite"
	if s.driver == DriverPostgres {
		dialect = database.DialectPostgres
		dir = "migrations/postgres"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	store, err := database.NewStore(dialect, migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("creating migration store: %w", err)
	}
	return goose.NewProvider("", s.db, fsys, goose.WithStore(store))
}

func (s *Store) migrate(ctx context.Context) error {
	p, err := s.provider()
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// AppliedVersion returns the latest applied migration version.
func (s *Store) AppliedVersion(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// AppendTurn writes the user and assistant rows in a single transaction.
// Both rows share a turn id and a timestamp; the autoincrement id keeps the
// user row first.
func (s *Store) AppendTurn(ctx context.Context, mode chat.Mode, user, assistant string) error {
	table, err := tableFor(mode)
	if err != nil {
		return &WriteError{Mode: mode, Err: err}
	}

	turnID := uuid.New().String()
	ts := s.timestamp(s.now())
	query := s.rebind(fmt.Sprintf(
		"INSERT INTO %s (turn_id, role, content, created_at) VALUES (?, ?, ?, ?)", table))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Mode: mode, Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback()

	for _, m := range []chat.Message{chat.UserMessage(user), chat.AssistantMessage(assistant)} {
		if _, err := tx.ExecContext(ctx, query, turnID, string(m.Role), m.Content, ts); err != nil {
			return &WriteError{Mode: mode, Err: fmt.Errorf("inserting %s row: %w", m.Role, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Mode: mode, Err: fmt.Errorf("committing turn: %w", err)}
	}
	return nil
}

// LoadHistory returns every message of the mode ordered by creation time.
func (s *Store) LoadHistory(ctx context.Context, mode chat.Mode) ([]chat.Entry, error) {
	table, err := tableFor(mode)
	if err != nil {
		return nil, &ReadError{Mode: mode, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT role, content, created_at FROM %s ORDER BY created_at ASC, id ASC", table))
	if err != nil {
		return nil, &ReadError{Mode: mode, Err: err}
	}
	defer rows.Close()

	entries := []chat.Entry{}
	for rows.Next() {
		var (
			e       chat.Entry
			role    string
			created any
		)
		if err := rows.Scan(&role, &e.Content, &created); err != nil {
			return nil, &ReadError{Mode: mode, Err: err}
		}
		e.Role = chat.Role(role)
		e.CreatedAt, err = parseTime(created)
		if err != nil {
			return nil, &ReadError{Mode: mode, Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{Mode: mode, Err: err}
	}
	return entries, nil
}

// CountMessages returns the number of stored rows for mode.
func (s *Store) CountMessages(ctx context.Context, mode chat.Mode) (int, error) {
	table, err := tableFor(mode)
	if err != nil {
		return 0, &ReadError{Mode: mode, Err: err}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, &ReadError{Mode: mode, Err: err}
	}
	return n, nil
}

func tableFor(mode chat.Mode) (string, error) {
	m, err := chat.ParseMode(string(mode))
	if err != nil {
		return "", err
	}
	return m.Table(), nil
}

func (s *Store) timestamp(t time.Time) any {
	if s.driver == DriverSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// rebind converts ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	}
	return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
}

func parseTimeString(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t.UTC(), nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/config"
	"github.com/kalambet/parley/internal/tui"
)

// --- chat ---

var chatMode string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive terminal chat",
	Long: `Open the interactive terminal chat against a running parley server.

Keys: enter sends, tab switches between general and project mode,
ctrl+y copies the last reply, esc or ctrl+c quits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := chat.ParseMode(chatMode)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.Health(commandContext(cmd)); err != nil {
			return err
		}

		p := tea.NewProgram(tui.New(client, mode), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

// --- ask ---

var askMode string

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send a single message and print the reply",
	Long: `Send a single message and print the reply.

Use "-" as the text to read the message from stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := chat.ParseMode(askMode)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("message is empty")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reply, err := client.Send(commandContext(cmd), mode, []chat.Message{chat.UserMessage(text)})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

// --- history ---

var (
	historyMode  string
	historyMatch string
	historyLimit int
	historyWidth int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation of a mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := chat.ParseMode(historyMode)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		entries, err := client.History(commandContext(cmd), mode)
		if err != nil {
			return err
		}

		lines := formatHistory(entries, historyMatch, historyLimit, historyWidth)
		if len(lines) == 0 {
			printWarning("No %s messages found", mode)
			return nil
		}
		for _, l := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

// entryContents feeds fuzzy.Find.
type entryContents []chat.Entry

func (e entryContents) String(i int) string { return e[i].Content }
func (e entryContents) Len() int            { return len(e) }

// filterEntries keeps entries fuzzily matching pattern, in stored order.
func filterEntries(entries []chat.Entry, pattern string) []chat.Entry {
	if strings.TrimSpace(pattern) == "" {
		return entries
	}
	matches := fuzzy.FindFrom(pattern, entryContents(entries))
	idx := make([]int, 0, len(matches))
	for _, m := range matches {
		idx = append(idx, m.Index)
	}
	sort.Ints(idx)

	out := make([]chat.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, entries[i])
	}
	return out
}

// formatHistory renders one line per entry. limit keeps the newest entries
// when > 0; width truncates content when > 0.
func formatHistory(entries []chat.Entry, pattern string, limit, width int) []string {
	entries = filterEntries(entries, pattern)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		who := colorize(colorCyan, "you")
		if e.Role == chat.RoleAssistant {
			who = colorize(colorGreen, "parley")
		}
		content := strings.Join(strings.Fields(e.Content), " ")
		if width > 0 {
			content = runewidth.Truncate(content, width, "…")
		}
		stamp := ""
		if !e.CreatedAt.IsZero() {
			stamp = colorize(colorDim, e.CreatedAt.Local().Format("2006-01-02 15:04")) + " "
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", stamp, who, content))
	}
	return lines
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s %s\n",
				colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret (read from stdin) in the platform secret store",
	Long: `Store a secret in the platform secret store. The value is read from
the first line of stdin so it never appears in shell history.

Secret keys: ` + strings.Join(config.SecretKeys(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if cmd.InOrStdin() == os.Stdin {
			fmt.Fprintf(os.Stderr, "Enter value for %s: ", key)
		}
		value, err := readSecretValue(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := config.SetSecret(key, value); err != nil {
			return err
		}
		printSuccess("Stored %s", key)
		return nil
	},
}

func readSecretValue(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading value: %w", err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("empty value")
	}
	return value, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	chatCmd.Flags().StringVarP(&chatMode, "mode", "m", string(chat.ModeGeneral), "chat mode (general, project)")
	askCmd.Flags().StringVarP(&askMode, "mode", "m", string(chat.ModeGeneral), "chat mode (general, project)")

	historyCmd.Flags().StringVarP(&historyMode, "mode", "m", string(chat.ModeGeneral), "chat mode (general, project)")
	historyCmd.Flags().StringVar(&historyMatch, "match", "", "fuzzy filter on message content")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the newest N messages")
	historyCmd.Flags().IntVar(&historyWidth, "width", 100, "truncate messages to this many columns (0 disables)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

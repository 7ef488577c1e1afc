package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/parley/internal/api"
	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/config"
	"github.com/kalambet/parley/internal/generation"
	"github.com/kalambet/parley/internal/session"
	"github.com/kalambet/parley/internal/storage"
	"github.com/kalambet/parley/internal/turn"
)

const shutdownTimeout = 5 * time.Second

var serveEphemeral bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the parley server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(serveEphemeral)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running parley server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show parley server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpEphemeral bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat modes as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(mcpEphemeral)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveEphemeral, "ephemeral", false, "keep conversations in memory only")
	mcpCmd.Flags().BoolVar(&mcpEphemeral, "ephemeral", false, "keep conversations in memory only")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "parley.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setupLogging(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)
	return logger
}

// openRepository returns the conversation store and a func that releases it.
func openRepository(cfg config.Config, ephemeral bool) (storage.Repository, func(), error) {
	if ephemeral {
		return storage.NewMemory(), func() {}, nil
	}

	store, err := storage.Open(storage.Options{
		Driver:  cfg.Storage.Driver,
		DataDir: cfg.Storage.DataDir,
		DSN:     cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, func() { closeQuietly(store) }, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

// newTurnHandler wires the generation backend to the repository.
func newTurnHandler(cfg config.Config, repo storage.Repository, logger *slog.Logger) (*turn.Handler, generation.Generator, error) {
	gen, err := generation.New(cfg.GenerationSettings())
	if err != nil {
		return nil, nil, fmt.Errorf("creating generation backend: %w", err)
	}
	h := turn.NewHandler(gen, repo,
		turn.WithLogger(logger),
		turn.WithRawInput(cfg.Chat.StoreRawInput),
	)
	return h, gen, nil
}

// buildHandler assembles the HTTP surface over repo.
func buildHandler(cfg config.Config, repo storage.Repository, logger *slog.Logger) (http.Handler, error) {
	turns, gen, err := newTurnHandler(cfg, repo, logger)
	if err != nil {
		return nil, err
	}
	return api.NewChatHandler(api.Deps{
		Turns:   turns,
		Token:   cfg.Server.Token,
		Backend: gen.Name(),
		Logger:  logger,
	}), nil
}

// listen opens the TCP listener, capping concurrent connections when max > 0.
func listen(addr string, max int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if max > 0 {
		ln = netutil.LimitListener(ln, max)
	}
	return ln, nil
}

func runServer(ephemeral bool) error {
	fmt.Fprintf(os.Stderr, "parley version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogging(cfg)

	// Refuse to start twice against the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(cfg.BaseURL() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("parley is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("parley is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ephemeral {
		printStep("Keeping conversations in memory")
	} else {
		printStep("Opening %s storage", cfg.Storage.Driver)
	}
	repo, release, err := openRepository(cfg, ephemeral)
	if err != nil {
		return err
	}
	defer release()

	handler, err := buildHandler(cfg, repo, logger)
	if err != nil {
		return err
	}

	ln, err := listen(cfg.Addr(), cfg.Server.MaxConnections)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "parley listening on %s\n", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP(ephemeral bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// stdout carries the MCP protocol; logs stay on stderr.
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, release, err := openRepository(cfg, ephemeral)
	if err != nil {
		return err
	}
	defer release()

	turns, _, err := newTurnHandler(cfg, repo, logger)
	if err != nil {
		return err
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Turns: turns, Version: version})
	logger.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("parley is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop parley (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to parley (PID %d)", pid)
	return nil
}

type healthInfo struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func fetchHealth(ctx context.Context, baseURL string) (healthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return healthInfo{}, err
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return healthInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return healthInfo{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var info healthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return healthInfo{}, fmt.Errorf("decoding health: %w", err)
	}
	return info, nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	info, err := fetchHealth(ctx, cfg.BaseURL())
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on %s", cfg.Addr())
		printStatus("Backend", "%s", info.Backend)

		client := session.NewHTTPClient(cfg.BaseURL(), cfg.Server.Token, 10*time.Second)
		st, err := client.Stats(ctx)
		if err != nil {
			printWarning("reading stats: %v", err)
		} else {
			printStats(st)
			if st.Storage == storage.DriverSQLite {
				printStatus("Data dir", "%s", cfg.Storage.DataDir)
			}
			return nil
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == storage.DriverSQLite {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	return nil
}

// printStats reports what the running server holds. The storage line comes
// from the server, which may be running with --ephemeral.
func printStats(st session.Stats) {
	printStatus("Storage", "%s", st.Storage)
	if st.SchemaVersion > 0 {
		printStatus("Schema", "version %d", st.SchemaVersion)
	}
	for _, mode := range chat.Modes() {
		printStatus(strings.ToUpper(string(mode[:1]))+string(mode[1:])+" messages", "%d", st.Messages[mode])
	}
}

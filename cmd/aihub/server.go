package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/yskim/aihub/internal/api"
	"github.com/yskim/aihub/internal/config"
	"github.com/yskim/aihub/internal/convo"
	"github.com/yskim/aihub/internal/intent"
	"github.com/yskim/aihub/internal/notify"
	"github.com/yskim/aihub/internal/pipeline"
	"github.com/yskim/aihub/internal/provider"
	"github.com/yskim/aihub/internal/summarize"
	"github.com/yskim/aihub/internal/telegram"
	"github.com/yskim/aihub/internal/watch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aihub server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running aihub server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aihub system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "aihub.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "aihub version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		return fmt.Errorf("missing required config: set AIHUB_API_TOKEN to protect the management API")
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("aihub is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("aihub is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	// Open conversation storage. The store also backs the watcher
	// ledger and the management API, so it is opened even when
	// conversational context is disabled.
	store, err := convo.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	summarizer := summarize.New(gen, cfg.Reply.MaxChunkSize, cfg.Reply.MaxSummarySize, slog.Default())
	dispatcher := buildDispatcher(cfg)

	deps := pipeline.Deps{
		Generator:  gen,
		Summarizer: summarizer,
	}
	if cfg.Context.Enabled {
		deps.Store = store
		deps.Compactor = convo.NewCompactor(store, gen, cfg.Context.CompressThreshold, cfg.Context.MaxMessages, cfg.Context.RetainTurns, slog.Default())
	}
	if cfg.Provider.RefineIntent {
		deps.Refiner = intent.NewRefiner(gen, slog.Default())
	}
	if dispatcher != nil {
		deps.Dispatcher = dispatcher
	}

	orch := pipeline.New(deps, pipeline.Options{
		MaxReplyLen:     cfg.Reply.MaxLength,
		PreviewLimit:    cfg.Reply.DocPreviewLimit,
		ContextMessages: cfg.Context.MaxMessages,
		RichMarkup:      cfg.Reply.RichMarkup,
	}, slog.Default())

	// Telegram: poll for owner messages and deliver out-of-band
	// results to the owner chat.
	var deliver func(ctx context.Context, r pipeline.Reply)
	if cfg.Telegram.Token != "" {
		tg := telegram.NewClient(cfg.Telegram.Token, slog.Default())
		if cfg.Telegram.OwnerID != 0 {
			ownerID := cfg.Telegram.OwnerID
			deliver = func(ctx context.Context, r pipeline.Reply) {
				for _, f := range r.Fragments {
					if err := tg.SendMessage(ctx, ownerID, f.Text, f.Mode); err != nil {
						slog.Warn("delivering to owner chat failed", "error", err)
					}
				}
			}
		}
		poller := telegram.NewPoller(tg, orch, cfg.Telegram.OwnerID, slog.Default())
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("telegram poller stopped", "error", err)
			}
		}()
		slog.Info("telegram poller started", "owner", cfg.Telegram.OwnerID)
	}

	// Mail watcher.
	if cfg.Watch.MailFeedURL != "" {
		ownerConv := "watch:mail"
		if cfg.Telegram.OwnerID != 0 {
			ownerConv = strconv.FormatInt(cfg.Telegram.OwnerID, 10)
		}
		interval := time.Duration(cfg.Watch.IntervalSeconds) * time.Second
		watcher := watch.New(watch.NewMailFeed(cfg.Watch.MailFeedURL), store, orch, deliver, ownerConv, interval, slog.Default())
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("mail watcher stopped", "error", err)
			}
		}()
		slog.Info("mail watcher started", "interval", interval)
	}

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Store:      store,
		Handler:    orch,
		Deliver:    deliver,
		Token:      cfg.Server.APIToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Log:        slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpDeps := api.MCPDeps{Summarizer: summarizer}
	if dispatcher != nil {
		mcpDeps.Dispatcher = dispatcher
	}
	stdioSrv := server.NewStdioServer(api.NewMCPServer(mcpDeps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "aihub listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildGenerator assembles the provider backend and its fallback chain
// from configuration.
func buildGenerator(ctx context.Context, cfg config.Config) (*provider.Client, error) {
	var backend provider.Backend
	switch cfg.Provider.Name {
	case "gemini":
		g, err := provider.NewGemini(ctx, cfg.Provider.GeminiAPIKey, cfg.Provider.PermissiveSafety)
		if err != nil {
			return nil, fmt.Errorf("creating gemini backend: %w", err)
		}
		backend = g
	case "openai":
		backend = provider.NewOpenAI(cfg.Provider.OpenAIAPIKey, cfg.Provider.OpenAIBaseURL)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}

	opts := provider.Options{
		Temperature:     float32(cfg.Provider.Temperature),
		MaxOutputTokens: int32(cfg.Provider.MaxOutputTokens),
	}
	return provider.NewClient(backend, cfg.Provider.Models, opts, slog.Default()), nil
}

// buildDispatcher wires every notification destination that has
// credentials configured. Returns nil when none do.
func buildDispatcher(cfg config.Config) *notify.Dispatcher {
	var notifiers []notify.Notifier
	if cfg.Notify.NotionToken != "" && cfg.Notify.NotionDatabaseID != "" {
		notifiers = append(notifiers, notify.NewNotion(cfg.Notify.NotionToken, cfg.Notify.NotionDatabaseID))
	}
	if cfg.Notify.N8NWebhookURL != "" {
		notifiers = append(notifiers, notify.NewN8N(cfg.Notify.N8NWebhookURL))
	}
	if cfg.Notify.SlackToken != "" && cfg.Notify.SlackChannel != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notify.NewDispatcher(slog.Default(), notifiers...)
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
		printError("aihub is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop aihub (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to aihub (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Provider.Name)
	printStatus("Models", "%s", strings.Join(cfg.Provider.Models, ", "))
	printStatus("Telegram", "%s", configuredLabel(cfg.Telegram.Token != ""))
	printStatus("Mail watcher", "%s", configuredLabel(cfg.Watch.MailFeedURL != ""))
	printStatus("Notify targets", "%d", countNotifiers(cfg))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configuredLabel(on bool) string {
	if on {
		return "configured"
	}
	return "not configured"
}

func countNotifiers(cfg config.Config) int {
	n := 0
	if cfg.Notify.NotionToken != "" && cfg.Notify.NotionDatabaseID != "" {
		n++
	}
	if cfg.Notify.N8NWebhookURL != "" {
		n++
	}
	if cfg.Notify.SlackToken != "" && cfg.Notify.SlackChannel != "" {
		n++
	}
	return n
}

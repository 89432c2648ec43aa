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

	"github.com/engineeringwithtemi/aide/internal/ai"
	"github.com/engineeringwithtemi/aide/internal/api"
	"github.com/engineeringwithtemi/aide/internal/config"
	"github.com/engineeringwithtemi/aide/internal/lab"
	"github.com/engineeringwithtemi/aide/internal/objectstore"
	"github.com/engineeringwithtemi/aide/internal/source"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aide server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running aide server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aide system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "aide.pid")
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

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newProvider picks the generation backend from config.
func newProvider(ctx context.Context, cfg config.Config) (ai.Provider, error) {
	switch cfg.AI.Provider {
	case "noop":
		slog.Warn("AI provider disabled; generation endpoints will return errors")
		return ai.Noop{}, nil
	case "gemini":
		return ai.NewGemini(ctx, ai.GeminiConfig{
			APIKey:   cfg.AI.GeminiAPIKey,
			Model:    cfg.AI.Model,
			CacheTTL: time.Duration(cfg.AI.CacheTTLSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider)
	}
}

// newObjectStore picks the raw-file backend from config. The returned
// cleanup func closes backend clients that hold connections.
func newObjectStore(ctx context.Context, cfg config.Config) (objectstore.Store, func(), error) {
	switch cfg.Objects.Backend {
	case "disk":
		dir := cfg.Objects.Dir
		if dir == "" {
			dir = filepath.Join(cfg.Storage.DataDir, "objects")
		}
		store, err := objectstore.NewDisk(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("creating object store: %w", err)
		}
		return store, func() {}, nil
	case "gcs":
		store, err := objectstore.NewGCS(ctx, cfg.Objects.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("creating GCS object store: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown object store backend %q", cfg.Objects.Backend)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "aide version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Check if server is already running via health endpoint before
	// claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("aide is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("aide is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	objects, closeObjects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeObjects()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	registry := source.NewRegistry()
	if err := source.Builtins(registry); err != nil {
		return fmt.Errorf("registering source types: %w", err)
	}

	if cfg.Server.APIToken == "" {
		slog.Warn("no API token configured; the HTTP API is unauthenticated")
	}

	deps := api.Deps{
		Store:     store,
		Objects:   objects,
		Provider:  provider,
		Sources:   registry,
		Generator: lab.NewGenerator(provider, slog.Default()),
		Token:     cfg.Server.APIToken,
		Logger:    slog.Default(),
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// MCP server on stdio so agent clients attached to this process can
	// browse the learning material.
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "aide listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("aide is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop aide (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to aide (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("AI provider", "%s", cfg.AI.Provider)
	if cfg.AI.Provider == "gemini" {
		printStatus("Model", "%s", cfg.AI.Model)
	}
	printStatus("Object store", "%s", cfg.Objects.Backend)

	if running {
		apiClient := newAPIClient(cfg)
		var workspaces []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if resp, err := apiClient.get(context.Background(), "/v1/workspaces"); err == nil {
			if decodeJSON(resp, &workspaces) == nil {
				printStatus("Workspaces", "%d", len(workspaces))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

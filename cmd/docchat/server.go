package main

import (
	"context"
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

	"github.com/spf13/cobra"

	"github.com/docchat/docchat/internal/api"
	"github.com/docchat/docchat/internal/chat"
	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/document"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/retrieval"
	"github.com/docchat/docchat/internal/session"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the docchat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running docchat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docchat server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runDir(cfg config.Config) string {
	if cfg.Session.DataDir != "" {
		return cfg.Session.DataDir
	}
	return os.TempDir()
}

func pidFilePath(dir string) string {
	return filepath.Join(dir, "docchat.pid")
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
	fmt.Fprintf(os.Stderr, "docchat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(runDir(cfg))
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("docchat is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("docchat is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: SQLite when a data dir is configured, in-memory otherwise.
	var sessions session.Store
	if cfg.Session.DataDir != "" {
		sqlite, err := session.OpenSQLite(cfg.Session.DataDir)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		sessions = sqlite
		slog.Info("session store", "backend", "sqlite", "dir", cfg.Session.DataDir)
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL)
		slog.Info("session store", "backend", "memory", "ttl", cfg.Session.TTL)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing session store: %v\n", err)
		}
	}()

	provider := document.NewFileProvider(cfg.Document.Path, cfg.Retrieval.ChunkSize)
	retriever := retrieval.New(cfg.Retrieval.TopK)
	client := llm.New(cfg.Model.Endpoint, cfg.Model.APIKey, cfg.Model.Deployment, cfg.Model.APIVersion)
	orchestrator := chat.New(client, sessions, provider, retriever)

	handler := api.NewHandler(api.Deps{
		Chat:           orchestrator,
		Model:          client,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("docchat listening", "addr", addr, "document", cfg.Document.Path)
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

	pidPath := pidFilePath(runDir(cfg))
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("docchat is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop docchat (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to docchat (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s (api-version %s)", cfg.Model.Deployment, cfg.Model.APIVersion)

	if _, err := os.Stat(cfg.Document.Path); err != nil {
		printStatus("Document", "%s (missing)", cfg.Document.Path)
	} else {
		printStatus("Document", "%s", cfg.Document.Path)
	}

	if cfg.Session.DataDir != "" {
		printStatus("Sessions", "sqlite (%s)", cfg.Session.DataDir)
	} else if cfg.Session.TTL > 0 {
		printStatus("Sessions", "in-memory (TTL %s)", cfg.Session.TTL)
	} else {
		printStatus("Sessions", "in-memory")
	}
	printStatus("Origins", "%s", strings.Join(cfg.CORS.AllowedOrigins, ", "))
	return nil
}

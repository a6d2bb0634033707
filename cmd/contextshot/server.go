package main

import (
	"context"
	"encoding/json"
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

	"github.com/ybartosh/contextshot/internal/api"
	"github.com/ybartosh/contextshot/internal/config"
	"github.com/ybartosh/contextshot/internal/coordinator"
	"github.com/ybartosh/contextshot/internal/docstore"
	"github.com/ybartosh/contextshot/internal/poller"
	"github.com/ybartosh/contextshot/internal/status"
	"github.com/ybartosh/contextshot/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the contextshot daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running contextshot daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capture and poller status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "contextshot.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "contextshot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Refuse a double start: probe the health endpoint before taking the
	// PID file, so a stale PID file never blocks a fresh start.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("contextshot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("contextshot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the capture index.
	index, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Wire the capture path: document store, index, status, poller.
	docs := docstore.New(cfg.Document.Path, cfg.Document.Capacity)
	reporter := status.NewReporter()
	coord := coordinator.New(docs, index, reporter)
	sched := poller.NewScheduler(coord, reporter)
	defer sched.Stop()

	deps := api.Deps{
		Coordinator: coord,
		Poller:      sched,
		History:     index,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// MCP server on stdio, alongside the HTTP API.
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("contextshot listening", "addr", addr, "document", cfg.Document.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown: stop the poller first so no new capture starts,
	// then drain the HTTP server.
	sched.Stop()

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
		printError("contextshot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop contextshot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to contextshot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Document", "%s", cfg.Document.Path)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	statusResp, err := client.Get(serverURL + "/status")
	if err != nil {
		printError("could not fetch status: %v", err)
		return nil
	}
	defer statusResp.Body.Close()

	var snap status.Snapshot
	if err := json.NewDecoder(statusResp.Body).Decode(&snap); err != nil {
		printError("could not parse status: %v", err)
		return nil
	}

	if snap.CurrentDocument != "" {
		printStatus("Document", "%s (%d rows)", snap.CurrentDocument, snap.RowsInCurrentDocument)
	} else {
		printStatus("Document", "%s (not yet created)", cfg.Document.Path)
	}
	if !snap.LastCaptureTime.IsZero() {
		printStatus("Last capture", "%s (%s)", snap.LastCaptureTime.Format(time.RFC3339), snap.LastTarget)
	} else {
		printStatus("Last capture", "none")
	}
	if snap.LastError != "" {
		printStatus("Last error", "%s", snap.LastError)
	}
	if snap.PollerRunning {
		printStatus("Poller", "running: %s every %s", snap.PollerTarget, snap.PollerInterval)
	} else {
		printStatus("Poller", "stopped")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

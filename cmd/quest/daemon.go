package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fentz26/questline/internal/audit"
	"github.com/fentz26/questline/internal/config"
	"github.com/fentz26/questline/internal/controlplane"
	"github.com/fentz26/questline/internal/events"
	"github.com/fentz26/questline/internal/numbering"
	"github.com/fentz26/questline/internal/quest"
	"github.com/fentz26/questline/internal/store"
	"github.com/fentz26/questline/internal/sweeper"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	dbPath     string
	sweepOn    bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the questline daemon",
	Long:  `Starts the questline daemon which provides the HTTP API for quests and listeners.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().BoolVar(&sweepOn, "sweep", false, "Fail overdue timer quests on the configured schedule")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cmd.Flags().Changed("sweep") {
		cfg.Sweep.Enabled = sweepOn
	}

	slog.SetDefault(cfg.Logger(os.Stderr))
	slog.Info("starting questline daemon", slog.String("db", cfg.DBPath))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	// Initialize components
	trail := audit.NewWriter(s)
	registry := events.NewRegistry(cfg.EventTTL)
	quests := quest.NewService(s, registry, numbering.New(s),
		quest.WithRecorder(trail),
		quest.WithDefaultTimer(cfg.DefaultTimer))

	// Create service and server
	service := controlplane.NewService(quests, trail, s)
	server := controlplane.NewServer(service, cfg.Listen)

	var sw *sweeper.Sweeper
	if cfg.Sweep.Enabled {
		sw = sweeper.New(quests, cfg.Sweep.Schedule)
		if err := sw.Start(); err != nil {
			s.Close()
			return err
		}
		server.SetSweeper(sw)
	}
	stopSweeper := func() {
		if sw != nil {
			sw.Stop()
		}
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		slog.Info("received signal, initiating graceful shutdown", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			slog.Error("server error", slog.Any("error", err))
			stopSweeper()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", slog.Any("error", err))
	}

	stopSweeper()

	slog.Info("closing database connection")
	if err := s.Close(); err != nil {
		slog.Error("database close error", slog.Any("error", err))
	}

	slog.Info("shutdown complete")
	return nil
}

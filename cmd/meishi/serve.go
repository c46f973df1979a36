package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/meishi/internal/server"
	"github.com/hyperjump/meishi/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and watch the inbox directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(parent context.Context, opts *rootOptions) error {
	cfg, configPath, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := initializeComponents(ctx, cfg, logger, componentOptions{rebuildIfStale: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close components", zap.Error(err))
		}
	}()

	// The inbox always runs so directories can be added over the API later.
	w := watcher.NewWatcher(c.Indexer, cfg.Watch.Directories, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
		watcher.WithLogger(logger),
		watcher.WithDeleteOnRemove(cfg.Watch.DeleteOnRemove),
		watcher.WithIgnore(cfg.Watch.Ignore))
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	go w.SyncExistingFiles()

	srv := server.NewServer(c.Engine, c.Indexer, cfg, logger, w, configPath)
	errCh := make(chan error, 1)
	go func() {
		logger.Debug("inbox directories", zap.Strings("directories", w.Directories()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sprintboard/internal/board"
	"sprintboard/internal/config"
	"sprintboard/internal/realtime"
	"sprintboard/internal/resolver"
	"sprintboard/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket hub",
		Long: `Start the sprint board server.

Examples:
  sprintboard serve
  sprintboard serve --addr :9090 --config /etc/sprintboard/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}

func runServe(addr string) error {
	cfg, log, store, err := bootstrap("sprintboard")
	if err != nil {
		return err
	}
	defer store.Close()
	defer func() { _ = log.Sync() }()

	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := resolver.NewDirectory()
	if users, err := store.ListUsers(ctx); err != nil {
		log.Warnw("user directory starts empty", "error", err)
	} else {
		dir.Put(users...)
		log.Infow("user directory loaded", "users", dir.Len())
	}

	hub := realtime.NewHub(log.Named("realtime"))
	go hub.Run(ctx)

	opts := cfg.BoardOptions()
	coord := board.NewCoordinator(store, dir, hub, log.Named("board"), opts)
	defer coord.Shutdown()

	srv := server.New(store, coord, hub, log.Named("http"), opts.Resolver)
	defer srv.Close()

	go func() {
		err := config.Watch(ctx, configPath, log.Named("config"), func(next *config.Config) {
			coord.SetTagNames(ctx, next.Board.Tags)
			log.Infow("tag names reloaded", "tags", next.Board.Tags)
		})
		if err != nil {
			log.Warnw("config watcher stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: srv.Engine(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("starting server", "addr", httpServer.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("failed to shutdown server", "error", err)
	}
	log.Infow("server stopped")
	return nil
}

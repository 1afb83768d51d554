package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"babil/internal/audio"
	"babil/internal/identity"
	"babil/internal/web"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wiki web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.CheckSessionKey(); err != nil {
			return err
		}

		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := identity.NewSessions(cfg.Server.SessionKey)
		if err != nil {
			return err
		}

		var (
			scheduler  audio.Scheduler
			sink       *audio.FileSink
			dispatcher *audio.Dispatcher
		)
		if renderer := a.audioRenderer(); renderer != nil {
			sink = renderer.Sink()
			if cfg.Audio.Async {
				dispatcher = audio.NewDispatcher(renderer, cfg.Audio.Workers, cfg.Audio.Queue, logger)
				scheduler = dispatcher
			} else {
				scheduler = audio.Inline{Renderer: renderer, Logger: logger}
			}
		}

		srv, err := web.NewServer(web.Options{
			Engine:       a.engine(scheduler),
			Gate:         a.gate(),
			Sessions:     sessions,
			Audio:        sink,
			Logger:       logger,
			FeedLimit:    cfg.Feed.Limit,
			ProfileLimit: cfg.Profile.Limit,
		})
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.Server.Addr, "backend", cfg.Storage.Backend, "audio", cfg.Audio.Engine)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
		case <-ctx.Done():
			logger.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if dispatcher != nil {
			if err := dispatcher.Close(shutdownCtx); err != nil {
				logger.Error("audio shutdown", "error", err)
			}
		}
		return nil
	},
}

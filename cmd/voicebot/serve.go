package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/voicebot/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
				cfg.BindAddr = bind
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			built, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			built.StartBackground(ctx)

			httpServer := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           built.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().
					Str("addr", cfg.BindAddr).
					Str("voice_provider", built.Voice.Provider).
					Strs("transcribers", built.Voice.Transcribers).
					Strs("synthesizers", built.Voice.Synthesizers).
					Msg("server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "listen")
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("graceful shutdown failed")
					_ = httpServer.Close()
				}
				return nil
			})

			runErr := g.Wait()

			cleanupCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := built.Cleanup(cleanupCtx); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
			log.Info().Msg("shutdown complete")
			return runErr
		},
	}
	cmd.Flags().String("bind", "", "listen address; overrides APP_BIND_ADDR")
	return cmd
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"cellar-service/internal/ai"
	recHnd "cellar-service/internal/reconcile/handler"
	"cellar-service/internal/reconcile/session"
	"cellar-service/internal/storage"
	serverhttp "cellar-service/server/http"
	"cellar-service/server/http/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		files, err := storage.New(ctx, cfg.Storage())
		if err != nil {
			return err
		}

		provider, err := ai.New(ctx, cfg.AI())
		switch {
		case errors.Is(err, ai.ErrNotConfigured):
			logger.Warn().Msg("no AI provider configured, description and extraction endpoints disabled")
			provider = nil
		case err != nil:
			return err
		default:
			logger.Info().Str("provider", provider.Name()).Msg("ai ready")
		}

		reg := session.NewRegistry(session.Deps{
			Catalog: store,
			Writer:  store,
			Creator: store,
			Audit:   store,
			Options: cfg.MatchOptions(),
			Workers: cfg.CommitWorkers,
			Logger:  logger,
		}, cfg.SessionTTL())

		api := handlers.NewAPI(store, files, provider, cfg.MatchOptions(), cfg.MaxUploadMB)
		r := serverhttp.NewRouter(cfg, logger, api, recHnd.New(reg, cfg.MaxUploadMB))

		srv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info().Str("addr", cfg.Addr()).Str("store", cfg.StoreDriver).Msg("server starting")

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		// graceful shutdown
		select {
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "listen")
			}
		case <-ctx.Done():
		}
		logger.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "shutdown")
		}
		logger.Info().Msg("bye")
		return nil
	},
}

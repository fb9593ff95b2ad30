package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			defer func() { _ = logger.Sync() }()

			log := logger.L().With(logger.Component("server"))
			if err := metrics.Register(nil); err != nil {
				return err
			}

			cfg := c.Config
			if cfg.Cleanup.Interval > 0 {
				go c.AuthServer.RunCleanup(ctx, cfg.Cleanup.Interval)
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           c.Handler(version),
				ReadTimeout:       cfg.Server.ReadTimeout,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", logger.String("addr", srv.Addr), logger.String("issuer", c.AuthServer.Issuer()))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

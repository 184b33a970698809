package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kengibson1111/go-test-content-cache/testcontent"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		seedPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve test content and the cache admin API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(root.dev)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			origin := testcontent.NewMemoryOrigin()
			if seedPath != "" {
				if origin, err = testcontent.LoadSeedFile(seedPath); err != nil {
					return err
				}
			}

			c, err := openCache(ctx, root, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("cache close failed", zap.Error(err))
				}
			}()

			service := testcontent.NewService(c, origin, c.Config().EntryTTL, logger)
			handler := testcontent.NewHandler(service, c, logger)

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(c.Metrics().Handler()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("test service listening",
					zap.String("addr", addr),
					zap.String("redis_mode", string(c.Config().Mode)))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("PORT", ":3003"), "listen address")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of tests served as the origin store")
	return cmd
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		if name == "PORT" && v[0] != ':' {
			return ":" + v
		}
		return v
	}
	return fallback
}

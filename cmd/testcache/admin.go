package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/cache"
)

// withCache runs fn against a connected cache under the root timeout.
func withCache(cmd *cobra.Command, root *rootOptions, fn func(ctx context.Context, c *cache.RedisCache) error) error {
	logger, err := newLogger(root.dev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
	defer cancel()

	c, err := openCache(ctx, root, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("cache close failed", zap.Error(err))
		}
	}()

	return fn(ctx, c)
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print server metrics and the namespace key count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, root, func(ctx context.Context, c *cache.RedisCache) error {
				return printJSON(cmd, c.Stats(ctx))
			})
		},
	}
}

func newFlushCmd(root *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every cached entry in the namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, root, func(ctx context.Context, c *cache.RedisCache) error {
				opts := cache.DefaultSweepOptions(c.Config())
				opts.DryRun = dryRun

				result := c.Sweeper().Run(ctx, opts)
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if !result.Completed {
					return fmt.Errorf("sweep incomplete after %d keys: %s", result.KeysScanned, result.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count matching keys without deleting them")
	return cmd
}

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the backing store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, root, func(ctx context.Context, c *cache.RedisCache) error {
				if err := c.Health(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "PONG")
				return nil
			})
		},
	}
}

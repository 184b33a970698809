package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/cache"
)

type rootOptions struct {
	configPath string
	dev        bool
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "testcache",
		Short:         "Cache-aside layer for exam test content",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "human-readable debug logging")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for one-shot admin commands")

	cmd.AddCommand(
		newServeCmd(opts),
		newStatsCmd(opts),
		newFlushCmd(opts),
		newPingCmd(opts),
	)
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openCache loads config, builds the cache and connects with bounded retries.
// A failed connection is logged and the cache is returned anyway; it serves
// every read as a miss.
func openCache(ctx context.Context, opts *rootOptions, logger *zap.Logger) (*cache.RedisCache, error) {
	config, err := cache.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	c, err := cache.NewRedisCache(config, logger)
	if err != nil {
		return nil, err
	}

	if err := c.Connect(ctx); err != nil {
		logger.Error("cache unavailable, continuing without it", zap.Error(err))
	}
	return c, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

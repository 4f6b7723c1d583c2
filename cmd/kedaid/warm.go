package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kedaihq/kedai/internal/cache"
	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
	"github.com/kedaihq/kedai/internal/store"
)

func warmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm [key...]",
		Short: "Run a one-off cache warmup",
		Long:  "Warm the given keys, or the usage-derived candidate list when no keys are given, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			metrics.Init("kedai", nil)

			ctx := cmd.Context()
			sys, err := cache.NewSystem(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build cache system: %w", err)
			}
			defer sys.Destroy(ctx)

			var usage cache.UsageSource
			if cfg.Postgres.DSN != "" {
				pgStore, err := store.NewPostgresUsageStore(ctx, cfg.Postgres.DSN)
				if err != nil {
					logging.Op().Warn("usage statistics unavailable, warming fallback list", "error", err)
				} else {
					defer pgStore.Close()
					usage = pgStore
				}
			}

			warmer := cache.NewWarmer(sys.Cache, usage, passthroughFetcher, cfg.Warmer.BatchSize, representativeItems())
			summary := warmer.Warmup(ctx, args...)
			fmt.Printf("warmup %s: cached=%d existing=%d errors=%d\n",
				summary.RunID, summary.Cached, summary.Existing, summary.Errors)
			if summary.Errors > 0 {
				return fmt.Errorf("%d keys failed to warm", summary.Errors)
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kedaihq/kedai/internal/cache"
	"github.com/kedaihq/kedai/internal/config"
	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
	"github.com/kedaihq/kedai/internal/observability"
	"github.com/kedaihq/kedai/internal/store"
)

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	return cfg, nil
}

func daemonCmd() *cobra.Command {
	var httpAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the kedai cache daemon",
		Long:  "Serve cache health, stats and Prometheus metrics, and run the warmup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			metrics.Init("kedai", nil)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Telemetry.Enabled,
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: cfg.Telemetry.ServiceName,
				SampleRate:  cfg.Telemetry.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			sys, err := cache.NewSystem(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build cache system: %w", err)
			}
			defer sys.Destroy(context.Background())

			var usage cache.UsageSource
			if cfg.Postgres.DSN != "" {
				pgStore, err := store.NewPostgresUsageStore(ctx, cfg.Postgres.DSN)
				if err != nil {
					logging.Op().Warn("usage statistics unavailable, warmup uses fallback list", "error", err)
				} else {
					defer pgStore.Close()
					usage = pgStore
				}
			}

			if cfg.Warmer.Enabled {
				warmer := cache.NewWarmer(sys.Cache, usage, passthroughFetcher, cfg.Warmer.BatchSize, representativeItems())
				warmer.Start(ctx, cfg.Warmer.Interval)
				defer warmer.Stop()
			}

			srv := &http.Server{
				Addr:    cfg.Daemon.HTTPAddr,
				Handler: observability.HTTPMiddleware(newMux(sys)),
			}
			go func() {
				logging.Op().Info("kedaid listening", "addr", cfg.Daemon.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.Op().Error("http server failed", "error", err)
					os.Exit(1)
				}
			}()

			<-ctx.Done()
			logging.Op().Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8086", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func newMux(sys *cache.System) *http.ServeMux {
	mux := http.NewServeMux()

	if h := metrics.Handler(); h != nil {
		mux.Handle("/metrics", h)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h := sys.Cache.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if h.Status == cache.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sys.Cache.Stats(r.Context()))
	})

	mux.HandleFunc("/breakers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sys.Breakers.Snapshot())
	})

	return mux
}

// passthroughFetcher marks warm candidates cacheable without a business
// loader attached. Deployments embed kedaid's packages directly and
// register real fetchers; the standalone daemon warms key presence only.
func passthroughFetcher(_ context.Context, item cache.WarmItem) (any, error) {
	return map[string]string{"key": item.Key, "warmed": time.Now().UTC().Format(time.RFC3339)}, nil
}

// representativeItems is the fallback warm list used when usage
// statistics are unavailable.
func representativeItems() []cache.WarmItem {
	items := []cache.WarmItem{
		{Key: "categories:tree", Opts: cache.Options{Namespace: "categories", Strategy: "categories"}},
		{Key: "products:featured", Opts: cache.Options{Namespace: "products", Strategy: "products"}},
		{Key: "settings:storefront", Opts: cache.Options{Namespace: "static", Strategy: "static"}},
	}
	// Major Malaysian postcodes: KL, Penang, Johor Bahru, Kuching, Kota Kinabalu.
	for _, pc := range []string{"50000", "10000", "80000", "93000", "88000"} {
		items = append(items, cache.WarmItem{
			Key:  "shipping:rate:" + pc,
			Opts: cache.Options{Namespace: "shipping", Strategy: "static"},
		})
	}
	return items
}

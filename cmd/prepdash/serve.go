package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/internal/server"
	"github.com/ajitpratap0/prepdash/pkg/config"
	"github.com/ajitpratap0/prepdash/pkg/observability"
	"github.com/ajitpratap0/prepdash/pkg/source"
	"github.com/ajitpratap0/prepdash/pkg/storage"
	"github.com/ajitpratap0/prepdash/pkg/store"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve preprocessing sessions over HTTP.

Example:
  prepdash serve --config prepdash.yaml --addr :8050`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.Flags(), map[string]string{
				"server.addr":             "addr",
				"store.backend":           "store",
				"sources.working":         "working",
				"sources.baseline":        "baseline",
				"server.enable_metrics":   "metrics",
				"tracing.enabled":         "tracing",
				"store.redis.addr":        "redis-addr",
				"store.session_ttl":       "session-ttl",
				"server.max_upload_bytes": "max-upload-bytes",
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", ":8050", "Listen address")
	cmd.Flags().String("store", "memory", "Session store backend (memory or redis)")
	cmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis store")
	cmd.Flags().String("working", "", "Default working dataset URI for new sessions")
	cmd.Flags().String("baseline", "", "Default baseline dataset URI (defaults to the working dataset)")
	cmd.Flags().Duration("session-ttl", 2*time.Hour, "Idle time after which a session is removed")
	cmd.Flags().Int64("max-upload-bytes", 100<<20, "Maximum upload size in bytes")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	cmd.Flags().Bool("tracing", false, "Export OpenTelemetry spans to stdout")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := setupLogger(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := observability.Init(observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	objects := storage.NewClient(cfg.Sources.Storage, log)
	defer objects.Close()

	srv := server.New(server.Options{
		Config:     cfg,
		Controller: pipeline.NewController(st, log),
		Registry:   transform.NewRegistry(transform.Options{Seed: cfg.Pipeline.Seed}),
		Loader:     source.NewLoader(objects, cfg.Sources.MaxRows, log),
		Logger:     log,
	})

	log.Info("starting prepdash",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("working_source", cfg.Sources.Working))
	return srv.ListenAndServe(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(ctx, cfg.Store.Redis, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

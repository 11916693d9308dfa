// API server entry point: serves stored run results over HTTP. The reads go
// to postgres, with redis and minio as optional report caches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/Controversy-Insight/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/database/redis"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/storage/minio"
	"github.com/turtacn/Controversy-Insight/internal/interfaces/rest"
	"github.com/turtacn/Controversy-Insight/internal/interfaces/rest/handlers"
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("apiserver")

	logger.Info("starting api server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()
	store := pgrepo.NewResultStore(conn.Pool(), logger)

	checkers := []handlers.HealthChecker{
		handlers.CheckerFunc{ComponentName: "postgres", Fn: conn.HealthCheck},
	}

	var cache handlers.ReportCache
	if cfg.Sinks.Redis {
		redisCli, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisCli.Close()
		cache = redis.NewMetricsCache(redisCli, logger)
		checkers = append(checkers, handlers.CheckerFunc{ComponentName: "redis", Fn: redisCli.Ping})
	}

	var archive handlers.ReportFetcher
	if cfg.Sinks.MinIO {
		minioCli, err := minio.NewClient(cfg.MinIO, logger)
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		defer minioCli.Close()
		archive = minio.NewReportArchive(minioCli, logger)
	}

	collector := prometheus.NewCollector(cfg.Metrics.Namespace, logger)

	routerCfg := rest.RouterConfig{
		Runs:   handlers.NewRunHandler(store, cache, archive, logger),
		Health: handlers.NewHealthHandler(version, checkers...),
		Logger: logger,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = collector.Handler()
	}

	srv := rest.NewServer(cfg.Server, routerCfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	return srv.Stop(context.Background())
}

// loadConfig uses the config file when given and falls back to environment
// variables alone.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

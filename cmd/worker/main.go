// Worker entry point: runs the analysis pipeline against the configured
// inputs and writes every enabled sink. Runs either once or on a fixed
// interval, with a redis lock serializing runs across replicas.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/config"
	neo4jdriver "github.com/turtacn/Controversy-Insight/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/turtacn/Controversy-Insight/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/Controversy-Insight/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/database/redis"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/ingest"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/search/milvus"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/search/opensearch"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/storage/minio"
)

// Build-time variables injected via ldflags.
var version = "dev"

const lockTTL = 30 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	interval := flag.Duration("interval", 0, "run on this interval; 0 runs once and exits")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
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
	logger = logger.Named("worker")

	logger.Info("starting worker",
		logging.String("version", version),
		logging.Duration("interval", *interval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *interval, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker failed", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, interval time.Duration, logger logging.Logger) error {
	infra, err := initInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	collector := prometheus.NewCollector(cfg.Metrics.Namespace, logger)
	metrics := prometheus.NewPipelineMetrics(collector)

	answers := ingest.NewAnswerReader(cfg.Ingest.AnswersPath, logger,
		ingest.WithAnswerDelimiter(cfg.DelimiterRune()),
		ingest.WithAnswerHeader(cfg.Ingest.HasHeader),
	)
	embeddings := ingest.NewEmbeddingReader(cfg.Ingest.TokensPath, logger,
		ingest.WithEmbeddingDelimiter(cfg.DelimiterRune()),
		ingest.WithEmbeddingHeader(cfg.Ingest.HasHeader),
	)

	svc, err := pipeline.NewService(cfg.Pipeline, answers, embeddings, infra.sinks(logger), metrics, logger)
	if err != nil {
		return err
	}

	healthSrv := startHealthServer(cfg, infra, collector, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("health server shutdown error", logging.Err(err))
		}
	}()

	if interval <= 0 {
		return runOnce(ctx, svc, infra.lock, logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First run immediately, then on every tick.
	if err := runOnce(ctx, svc, infra.lock, logger); err != nil {
		logger.Error("scheduled run failed", logging.Err(err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := runOnce(ctx, svc, infra.lock, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Error("scheduled run failed", logging.Err(err))
			}
		}
	}
}

// runOnce executes one pipeline run under the distributed lock when one is
// configured. A held lock means another replica is running; that is not an
// error for scheduled mode.
func runOnce(ctx context.Context, svc *pipeline.Service, lock *redis.RunLock, logger logging.Logger) error {
	if lock != nil {
		if err := lock.TryAcquire(ctx); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				logger.Warn("run skipped, another replica holds the lock")
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Error("lock release failed", logging.Err(err))
			}
		}()
	}

	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("run finished",
		logging.String("run_id", string(report.RunID)),
		logging.String("status", string(report.Status)),
		logging.Int("answers_read", report.Input.AnswersRead),
		logging.Int("questions_scored", report.Scoring.QuestionsScored),
		logging.Int("answers_scored", report.Scoring.AnswersScored),
		logging.Int("sink_errors", len(report.SinkErrors)))
	return nil
}

// infrastructure bundles every connected backend. Postgres is mandatory;
// the rest follow the sink toggles.
type infrastructure struct {
	pg        *postgres.Connection
	redisCli  *redis.Client
	producer  *kafka.Producer
	neo4jDrv  *neo4jdriver.Driver
	milvusCli *milvus.Client
	osCli     *opensearch.Client
	minioCli  *minio.Client

	lock    *redis.RunLock
	store   *pgrepo.ResultStore
	cache   *redis.MetricsCache
	events  *kafka.EventPublisher
	vectors *milvus.VectorStore
	index   *opensearch.ScoreIndexer
	graph   *neo4jrepo.GraphRepo
	archive *minio.ReportArchive
}

func (i *infrastructure) Close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.milvusCli != nil {
		i.milvusCli.Close()
	}
	if i.osCli != nil {
		i.osCli.Close()
	}
	if i.neo4jDrv != nil {
		i.neo4jDrv.Close()
	}
	if i.minioCli != nil {
		i.minioCli.Close()
	}
	if i.redisCli != nil {
		i.redisCli.Close()
	}
	if i.pg != nil {
		i.pg.Close()
	}
}

// sinks assembles the pipeline sink set, leaving disabled destinations nil.
func (i *infrastructure) sinks(logger logging.Logger) *pipeline.Sinks {
	s := &pipeline.Sinks{Store: i.store}
	if i.cache != nil {
		s.Cache = i.cache
	}
	if i.events != nil {
		s.Events = i.events
	}
	if i.vectors != nil {
		s.Vectors = i.vectors
	}
	if i.index != nil {
		s.Index = i.index
	}
	if i.graph != nil {
		s.Graph = i.graph
	}
	if i.archive != nil {
		s.Archive = i.archive
	}
	return s
}

func initInfrastructure(ctx context.Context, cfg *config.Config, logger logging.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.pg = pg
	infra.store = pgrepo.NewResultStore(pg.Pool(), logger)

	if cfg.Sinks.Redis {
		redisCli, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.redisCli = redisCli
		infra.cache = redis.NewMetricsCache(redisCli, logger)
		infra.lock = redis.NewRunLock(redisCli, lockTTL, logger)
	}

	if cfg.Sinks.Kafka {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		infra.producer = producer
		infra.events = kafka.NewEventPublisher(producer, logger)
	}

	if cfg.Sinks.Milvus {
		milvusCli, err := milvus.NewClient(cfg.Milvus, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("milvus: %w", err)
		}
		infra.milvusCli = milvusCli
		vectors, err := milvus.NewVectorStore(milvusCli, cfg.Milvus, cfg.Milvus.EmbeddingDim, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("milvus: %w", err)
		}
		if err := vectors.EnsureCollection(ctx); err != nil {
			infra.Close()
			return nil, fmt.Errorf("milvus: %w", err)
		}
		infra.vectors = vectors
	}

	if cfg.Sinks.OpenSearch {
		osCli, err := opensearch.NewClient(cfg.OpenSearch, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		infra.osCli = osCli
		infra.index = opensearch.NewScoreIndexer(osCli, logger)
	}

	if cfg.Sinks.Neo4j {
		drv, err := neo4jdriver.NewDriver(cfg.Neo4j, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("neo4j: %w", err)
		}
		infra.neo4jDrv = drv
		infra.graph = neo4jrepo.NewGraphRepo(drv, logger)
	}

	if cfg.Sinks.MinIO {
		minioCli, err := minio.NewClient(cfg.MinIO, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.minioCli = minioCli
		infra.archive = minio.NewReportArchive(minioCli, logger)
	}

	logger.Info("worker infrastructure initialized")
	return infra, nil
}

// startHealthServer serves liveness, readiness, and prometheus metrics on
// the worker health port.
func startHealthServer(cfg *config.Config, infra *infrastructure, collector *prometheus.Collector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := infra.pg.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("postgres unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", collector.Handler())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler: mux,
	}
	go func() {
		logger.Info("health server listening", logging.Int("port", cfg.Worker.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Worker.ShutdownTimeout > 0 {
		return cfg.Worker.ShutdownTimeout
	}
	return 30 * time.Second
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

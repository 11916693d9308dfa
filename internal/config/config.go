// Package config defines all configuration structures for the
// Controversy-Insight platform.  No I/O or parsing logic lives here — only
// plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP API server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PipelineConfig holds analysis pipeline execution parameters.
type PipelineConfig struct {
	// Concurrency bounds the number of question groups scored in parallel.
	// 0 means "use the number of logical CPUs".
	Concurrency int `mapstructure:"concurrency"`

	// PublishQuestionEvents controls whether a per-question metrics event is
	// published for every aggregated question in addition to the run events.
	PublishQuestionEvents bool `mapstructure:"publish_question_events"`
}

// IngestConfig holds input file parameters for the batch worker.
type IngestConfig struct {
	AnswersPath string `mapstructure:"answers_path"`
	TokensPath  string `mapstructure:"tokens_path"`
	// Delimiter is a single-rune field separator, "\t" for TSV exports.
	Delimiter string `mapstructure:"delimiter"`
	HasHeader bool   `mapstructure:"has_header"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addrs        []string      `mapstructure:"addrs"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer parameters.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	Acks         string        `mapstructure:"acks"` // "none" | "one" | "all"
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MilvusConfig holds Milvus vector-store connection parameters.
type MilvusConfig struct {
	Addr             string `mapstructure:"addr"`
	DBName           string `mapstructure:"db_name"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	// EmbeddingDim, when non-zero, is validated against the dimension of the
	// loaded embedding table before vectors are written.
	EmbeddingDim int `mapstructure:"embedding_dim"`
	ShardsNum    int `mapstructure:"shards_num"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// Neo4jConfig holds Neo4j disagreement-graph connection parameters.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// WorkerConfig holds batch-worker execution parameters.
type WorkerConfig struct {
	// HealthPort is the port for the worker's health and metrics endpoint.
	HealthPort      int           `mapstructure:"health_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SinkConfig toggles the optional output sinks.  The postgres store is always
// on; everything else can be disabled for local runs.
type SinkConfig struct {
	Redis      bool `mapstructure:"redis"`
	Kafka      bool `mapstructure:"kafka"`
	Milvus     bool `mapstructure:"milvus"`
	OpenSearch bool `mapstructure:"opensearch"`
	MinIO      bool `mapstructure:"minio"`
	Neo4j      bool `mapstructure:"neo4j"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the entire platform.  Every
// infrastructure component and application service reads its settings from
// the relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Sinks      SinkConfig       `mapstructure:"sinks"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Pipeline
	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("config: pipeline.concurrency must be ≥ 0, got %d", c.Pipeline.Concurrency)
	}

	// Ingest
	if len(c.Ingest.Delimiter) != 1 && c.Ingest.Delimiter != "\\t" {
		return fmt.Errorf("config: ingest.delimiter %q must be a single rune", c.Ingest.Delimiter)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Sinks.Redis && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addrs must contain at least one address when the redis sink is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Sinks.Kafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address when the kafka sink is enabled")
	}

	// Milvus
	if c.Sinks.Milvus && c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required when the milvus sink is enabled")
	}
	if c.Milvus.EmbeddingDim < 0 {
		return fmt.Errorf("config: milvus.embedding_dim must be ≥ 0, got %d", c.Milvus.EmbeddingDim)
	}

	// OpenSearch
	if c.Sinks.OpenSearch && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address when the opensearch sink is enabled")
	}

	// MinIO
	if c.Sinks.MinIO && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required when the minio sink is enabled")
	}
	if c.Sinks.MinIO && c.MinIO.Bucket == "" {
		return fmt.Errorf("config: minio.bucket is required when the minio sink is enabled")
	}

	// Neo4j
	if c.Sinks.Neo4j && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required when the neo4j sink is enabled")
	}

	// Worker
	if c.Worker.HealthPort < 1 || c.Worker.HealthPort > 65535 {
		return fmt.Errorf("config: worker.health_port %d is out of range [1, 65535]", c.Worker.HealthPort)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// DelimiterRune resolves the configured ingest delimiter to a rune, mapping
// the literal "\t" escape to a tab.
func (c *Config) DelimiterRune() rune {
	if c.Ingest.Delimiter == "\\t" {
		return '\t'
	}
	return []rune(c.Ingest.Delimiter)[0]
}

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/Controversy-Insight/internal/config"
)

// validConfig returns a Config that passes Validate() with all required fields set.
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// Fill required fields that have no default.
	cfg.Database.Password = "secret"
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_MissingDatabaseUser(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.User = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user")
}

func TestConfig_Validate_MissingDatabaseName(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.DBName = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.db_name")
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	t.Parallel()
	cases := []int{0, -1, 65536, 100000}
	for _, p := range cases {
		p := p
		t.Run("", func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.Server.Port = p
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidServerMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.Mode = "production" // not an accepted value
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
}

func TestConfig_Validate_NegativePipelineConcurrency(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Pipeline.Concurrency = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency")
}

func TestConfig_Validate_ZeroPipelineConcurrencyIsAllowed(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Pipeline.Concurrency = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MultiRuneIngestDelimiter(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Ingest.Delimiter = ";;"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.delimiter")
}

func TestConfig_Validate_TabEscapeDelimiterIsAllowed(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Ingest.Delimiter = "\\t"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_InvalidDatabasePort(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.port")
}

func TestConfig_Validate_DatabaseMaxConnsLessThanOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.MaxConns = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.max_conns")
}

func TestConfig_Validate_EmptyRedisAddrsWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.Redis = true
	cfg.Redis.Addrs = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addrs")
}

func TestConfig_Validate_EmptyRedisAddrsWithSinkDisabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.Redis = false
	cfg.Redis.Addrs = nil
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_EmptyKafkaBrokersWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.Kafka = true
	cfg.Kafka.Brokers = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestConfig_Validate_MissingMilvusAddrWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.Milvus = true
	cfg.Milvus.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus.addr")
}

func TestConfig_Validate_EmptyOpenSearchAddressesWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.OpenSearch = true
	cfg.OpenSearch.Addresses = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch.addresses")
}

func TestConfig_Validate_MissingMinIOEndpointWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.MinIO = true
	cfg.MinIO.Endpoint = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio.endpoint")
}

func TestConfig_Validate_MissingNeo4jURIWithSinkEnabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sinks.Neo4j = true
	cfg.Neo4j.URI = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neo4j.uri")
}

func TestConfig_Validate_InvalidWorkerHealthPort(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Worker.HealthPort = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.health_port")
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestConfig_Validate_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestConfig_DelimiterRune(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Ingest.Delimiter = "\\t"
	assert.Equal(t, '\t', cfg.DelimiterRune())

	cfg.Ingest.Delimiter = ","
	assert.Equal(t, ',', cfg.DelimiterRune())
}

func TestConfig_SubStructs_ZeroValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, "", cfg.Server.Mode)
	assert.Equal(t, "", cfg.Database.Host)
	assert.Equal(t, 0, cfg.Database.Port)
	assert.Nil(t, cfg.Redis.Addrs)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, "", cfg.Milvus.Addr)
	assert.Equal(t, "", cfg.Log.Level)
	assert.False(t, cfg.Sinks.Kafka)
	assert.Equal(t, 0, cfg.Worker.HealthPort)
}

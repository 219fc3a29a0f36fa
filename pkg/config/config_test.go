package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "collection-ingest", cfg.Kafka.Topics.CollectionIngest)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  writeTimeout: 5s
logging:
  level: debug
  format: text
redis:
  addr: localhost:6379
  cacheTTL: 2m
ingest:
  files:
    - data/books.json
    - data/pages.json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"data/books.json", "data/pages.json"}, cfg.Ingest.Files)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INVX_SERVER_PORT", "7070")
	t.Setenv("INVX_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("INVX_POSTGRES_HOST", "db")
	t.Setenv("INVX_METRICS_ENABLED", "false")
	t.Setenv("INVX_SERVER_RPC_PORT", "9100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Server.RPCPort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topics.CollectionIngest = ""
	cfg.Server.RPCPort = 70000
	cfg.Auth.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "logging.format")
	assert.Contains(t, err.Error(), "collectionIngest")
	assert.Contains(t, err.Error(), "server.rpcPort")
	assert.Contains(t, err.Error(), "auth.enabled requires postgres.host")
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}

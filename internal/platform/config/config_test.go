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
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "dev-admin-token", cfg.Server.AdminToken)
	assert.Equal(t, SinkMemory, cfg.Audit.Sink)
	assert.Equal(t, 5, cfg.Audit.BreakerThreshold)
	assert.Equal(t, time.Second, cfg.Audit.RelayInterval)
	assert.Equal(t, "casetrail.audit.compliance", cfg.Kafka.ComplianceTopic)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CASETRAIL_SERVER_ADDR", ":9090")
	t.Setenv("CASETRAIL_SERVER_ENVIRONMENT", "prod")
	t.Setenv("CASETRAIL_SERVER_ADMIN_TOKEN", "s3cret")
	t.Setenv("CASETRAIL_DATABASE_URL", "postgres://localhost/casetrail")
	t.Setenv("CASETRAIL_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CASETRAIL_AUDIT_SINK", "Postgres")
	t.Setenv("CASETRAIL_AUDIT_RELAY_INTERVAL", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, SinkPostgres, cfg.Audit.Sink)
	assert.Equal(t, 250*time.Millisecond, cfg.Audit.RelayInterval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casetrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7070"
audit:
  async_buffer_size: 64
`), 0o600))
	t.Setenv("CASETRAIL_SERVER_ADDR", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr, "environment overrides the file")
	assert.Equal(t, 64, cfg.Audit.AsyncBufferSize)
}

func TestValidate(t *testing.T) {
	t.Run("postgres sink needs a database", func(t *testing.T) {
		t.Setenv("CASETRAIL_AUDIT_SINK", "postgres")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "CASETRAIL_DATABASE_URL")
	})

	t.Run("unknown sink is rejected", func(t *testing.T) {
		t.Setenv("CASETRAIL_AUDIT_SINK", "s3")
		_, err := FromEnv()
		assert.ErrorContains(t, err, `unknown audit sink "s3"`)
	})

	t.Run("admin token required outside dev", func(t *testing.T) {
		t.Setenv("CASETRAIL_SERVER_ENVIRONMENT", "prod")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "ADMIN_TOKEN")
	})
}

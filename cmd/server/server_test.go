package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/internal/platform/config"
	"casetrail/internal/platform/metrics"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/testutil"
)

func testAuditConfig(sink string) config.Config {
	return config.Config{
		Audit: config.Audit{
			Sink:             sink,
			BreakerThreshold: 3,
			BreakerCooldown:  time.Second,
		},
	}
}

func TestBuildSinkChain(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory sink is queryable through the chain", func(t *testing.T) {
		chain, err := buildSinkChain(testAuditConfig(config.SinkMemory), &infra{}, log, metrics.New())
		require.NoError(t, err)
		require.NotNil(t, chain.store)
		require.NotNil(t, chain.publisher)
		assert.Nil(t, chain.outbox)
		defer chain.publisher.Close()

		ctx := context.Background()
		require.NoError(t, chain.sink.Send(ctx, audit.AuditEvent{
			BusinessObjectID:   "TX-1",
			BusinessObjectType: audit.BusinessObjectTransaction,
			ActivityType:       audit.ActivityTransactionAssigned,
		}))
		events, err := chain.store.ListByBusinessObject(ctx, audit.BusinessObjectTransaction, "TX-1")
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("postgres sink without a database", func(t *testing.T) {
		_, err := buildSinkChain(testAuditConfig(config.SinkPostgres), &infra{}, log, metrics.New())
		assert.Error(t, err)
	})

	t.Run("redis stream sink without redis", func(t *testing.T) {
		_, err := buildSinkChain(testAuditConfig(config.SinkRedisStream), &infra{}, log, metrics.New())
		assert.Error(t, err)
	})

	t.Run("unknown sink", func(t *testing.T) {
		_, err := buildSinkChain(testAuditConfig("kafka"), &infra{}, log, metrics.New())
		assert.ErrorContains(t, err, `unknown audit sink "kafka"`)
	})
}

func TestHealthHandlerWithoutDependencies(t *testing.T) {
	req := testutil.NewJSONRequest(t, http.MethodGet, "/healthz", "")
	rec := testutil.DoRequest(healthHandler(&infra{}), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := testutil.DecodeResponse[healthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestSchemaCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: case
properties:
  - name: riskScore
  - name: doubled
    kind: computed
    expression: {"*": [{"var": "riskScore"}, 2]}
  - name: address
    kind: nested
    schema:
      properties:
        - name: city
`), 0o600))

	var out bytes.Buffer
	schemaCheckCmd.SetOut(&out)
	t.Cleanup(func() { schemaCheckCmd.SetOut(nil) })

	require.NoError(t, runSchemaCheck(schemaCheckCmd, []string{path}))
	assert.Equal(t, "riskScore\ndoubled\t(computed, not tracked)\naddress.city\n", out.String())

	assert.Error(t, runSchemaCheck(schemaCheckCmd, []string{filepath.Join(t.TempDir(), "missing.yaml")}))
}

//go:build integration

package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/migrations"
	"casetrail/pkg/testutil/containers"
)

func TestApply(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)

	// The container already ran Apply; running it again is a no-op.
	require.NoError(t, migrations.Apply(ctx, pg.DB))

	version, err := migrations.Version(ctx, pg.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"outbox", "audit_events"} {
		var exists bool
		require.NoError(t, pg.DB.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists))
		assert.True(t, exists, table)
	}
}

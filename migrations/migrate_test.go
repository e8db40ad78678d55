package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wavethanapon/shop/internal/testutil"
	"github.com/wavethanapon/shop/migrations"
)

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS order_lines, orders, products, schema_migrations`)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, migrations.Apply(ctx, pool, migrations.WithLogger(zap.New(core))))
	require.Equal(t, 2, logs.FilterMessage("migration applied").Len())

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	require.Equal(t, 2, count)

	require.NoError(t, migrations.Apply(ctx, pool))
	var count2 int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count2))
	require.Equal(t, count, count2)

	status, err := migrations.Status(ctx, pool)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, m := range status {
		require.Truef(t, m.Applied, "migration %s not applied", m.Name)
	}
}

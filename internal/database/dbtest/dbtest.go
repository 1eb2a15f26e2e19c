// Package dbtest opens an in-memory sqlite bun.DB with the full schema and
// builds catalogue fixtures for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"ms-ordering/internal/database"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a fresh database. A single connection keeps the in-memory
// database alive and serializes transactions the way row locks would.
func New(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err, "open in-memory sqlite")
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, database.CreateSchema(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return db
}

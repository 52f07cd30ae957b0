package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	assert.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	assert.NoError(t, err)
	return count > 0
}

func TestRunMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.NoError(t, RunMigrations(ctx, db))
	assert.True(t, tableExists(t, db, "nodes"))
	assert.True(t, tableExists(t, db, "migrations"))

	// All migrations recorded
	var applied int
	assert.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, len(Migrations), applied)

	// The schema accepts detached rows with NULL boundaries
	_, err := db.Exec("INSERT INTO nodes (label, parent_id, lft, rgt) VALUES ('root', NULL, NULL, NULL)")
	assert.NoError(t, err)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.NoError(t, RunMigrations(ctx, db))
	assert.NoError(t, RunMigrations(ctx, db))

	var applied int
	assert.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, len(Migrations), applied)
}

func TestRollbackMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.NoError(t, RunMigrations(ctx, db))

	// Roll back the index migration, then the table itself
	assert.NoError(t, RollbackMigration(ctx, db))
	assert.True(t, tableExists(t, db, "nodes"))

	assert.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "nodes"))

	assert.Error(t, RollbackMigration(ctx, db))
}

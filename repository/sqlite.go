package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/treekit/arbor/migrations"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	*sqlTree
	dbPath string
}

// NewSQLiteRepository creates a new SQLite repository instance
func NewSQLiteRepository() *SQLiteRepository {
	// Default to data directory in user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Create data directory if it doesn't exist
	dataDir := filepath.Join(homeDir, ".arbor")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// Fallback to current directory if home directory is not accessible
		dataDir = "."
	}

	return &SQLiteRepository{
		dbPath: filepath.Join(dataDir, "arbor.db"),
	}
}

// NewSQLiteRepositoryAt creates a SQLite repository backed by the given
// database file. Used by tests to avoid touching the home directory.
func NewSQLiteRepositoryAt(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{dbPath: dbPath}
}

// Initialize opens the SQLite database and applies migrations
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite3", r.dbPath)
	if err != nil {
		return err
	}

	if err := migrations.RunMigrations(ctx, db); err != nil {
		db.Close()
		return err
	}

	r.sqlTree = newSQLTree(db, sq.Question, nil)
	return nil
}

// Cleanup closes the database connection
func (r *SQLiteRepository) Cleanup(ctx context.Context) error {
	if r.sqlTree != nil && r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateNode inserts a new row and attaches it to the tree
func (r *SQLiteRepository) CreateNode(ctx context.Context, label string, parentID *int64) (int64, error) {
	if label == "" {
		return 0, ErrInvalidInput
	}

	// Check if parent exists
	if parentID != nil {
		exists, err := r.nodeExists(ctx, *parentID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNodeNotFound
		}
	}

	return r.attach(ctx, func(tx *sql.Tx) (int64, error) {
		query, args, err := r.sb.
			Insert(r.table).
			Columns(r.labelCol, "parent_id").
			Values(label, parentID).
			ToSql()
		if err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}, parentID)
}

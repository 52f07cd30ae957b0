package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/treekit/arbor/config"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	*sqlTree
	config  *config.DatabaseConfig
	treeCfg *config.TreeConfig
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(cfgProvider config.Provider) (*PostgresRepository, error) {
	ctx := context.Background()
	cfg, err := config.GetDatabaseConfig(ctx, cfgProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get database config: %w", err)
	}

	treeCfg, err := config.GetTreeConfig(ctx, cfgProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree config: %w", err)
	}

	return &PostgresRepository{
		config:  cfg,
		treeCfg: treeCfg,
	}, nil
}

// Initialize sets up the PostgreSQL database
func (r *PostgresRepository) Initialize(ctx context.Context) error {
	// Construct connection string
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		r.config.Host,
		r.config.Port,
		r.config.User,
		r.config.Password,
		r.config.DBName,
		r.config.SSLMode,
	)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error pinging database: %w", err)
	}

	// Run migrations
	if err := r.runMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("error running migrations: %w", err)
	}

	r.sqlTree = newSQLTree(db, sq.Dollar, r.treeCfg)
	return nil
}

// runMigrations executes database migrations
func (r *PostgresRepository) runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error running migrations: %w", err)
	}

	return nil
}

// Cleanup closes the database connection
func (r *PostgresRepository) Cleanup(ctx context.Context) error {
	if r.sqlTree != nil && r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateNode inserts a new row and attaches it to the tree
func (r *PostgresRepository) CreateNode(ctx context.Context, label string, parentID *int64) (int64, error) {
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
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return 0, err
		}
		var id int64
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
		return id, err
	}, parentID)
}

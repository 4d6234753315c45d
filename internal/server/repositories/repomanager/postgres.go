// Package repomanager provides RepositoryManager implementations for
// PostgreSQL and for in-process use, wiring repository constructors and
// database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/recordkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct {
	db       *sql.DB
	metadata *metadata.PostgresRepository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

var sqlOpen = sql.Open

// NewPostgresRepositoryManager opens dsn with the pgx driver.
func NewPostgresRepositoryManager(dsn string, maxWriteBatch int) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return NewPostgresRepositoryManagerFromDB(db, maxWriteBatch), nil
}

// NewPostgresRepositoryManagerFromDB wraps an already opened database.
func NewPostgresRepositoryManagerFromDB(db *sql.DB, maxWriteBatch int) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{
		db:       db,
		metadata: metadata.NewPostgresRepository(db, maxWriteBatch),
	}
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

func (m *PostgresRepositoryManager) Metadata() metadata.Repository {
	return m.metadata
}

func (m *PostgresRepositoryManager) PingContext(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

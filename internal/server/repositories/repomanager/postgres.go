// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/downloadtokens"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// DownloadTokens returns a downloadtokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) DownloadTokens(db dbx.DBTX) downloadtokens.Repository {
	return downloadtokens.NewPostgresRepository(db)
}

// Artifacts returns an artifacts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Artifacts(db dbx.DBTX) artifacts.Repository {
	return artifacts.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

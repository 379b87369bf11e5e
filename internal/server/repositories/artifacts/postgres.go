package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LatestVersion(ctx context.Context) (int64, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM catalog_versions
	`
	var v int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) Resolve(ctx context.Context, productID string) (*models.ArtifactMapping, error) {
	query := `
		SELECT version, product_id, file_key, display_name
		FROM artifact_mappings
		WHERE product_id = $1 AND version = (SELECT MAX(version) FROM catalog_versions)
	`
	m := &models.ArtifactMapping{}
	err := r.db.QueryRowContext(ctx, query, productID).Scan(&m.Version, &m.ProductID, &m.FileKey, &m.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) CreateVersion(ctx context.Context, note string, at time.Time) (int64, error) {
	query := `
		INSERT INTO catalog_versions (note, published_at)
		VALUES ($1, $2)
		RETURNING version
	`
	var v int64
	if err := r.db.QueryRowContext(ctx, query, note, at).Scan(&v); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) InsertMapping(ctx context.Context, m models.ArtifactMapping) error {
	query := `
		INSERT INTO artifact_mappings (version, product_id, file_key, display_name)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, m.Version, m.ProductID, m.FileKey, m.DisplayName); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

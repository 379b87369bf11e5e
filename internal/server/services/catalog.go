package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
)

// CatalogService publishes new versions of the product → artifact table.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewCatalogService(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) *CatalogService {
	return &CatalogService{db: db, repomanager: rm, log: log.With("module", "catalog")}
}

// Publish writes entries as a new catalog version. Either the whole version
// becomes visible or none of it does.
func (s *CatalogService) Publish(ctx context.Context, note string, entries []models.ArtifactMapping) (int64, error) {
	if err := validateEntries(entries); err != nil {
		return 0, err
	}

	var version int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Artifacts(tx)

		v, err := repo.CreateVersion(ctx, note, nowFn())
		if err != nil {
			return err
		}

		for _, e := range entries {
			e.Version = v
			if err := repo.InsertMapping(ctx, e); err != nil {
				return err
			}
		}

		version = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error publishing artifact map: %w", err)
	}

	s.log.Info(ctx, "artifact map published", "version", version, "entries", len(entries))
	return version, nil
}

func validateEntries(entries []models.ArtifactMapping) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries", common.ErrInvalidArtifactMap)
	}
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ProductID == "" || e.FileKey == "" {
			return fmt.Errorf("%w: entry %d needs product_id and file_key", common.ErrInvalidArtifactMap, i)
		}
		if _, dup := seen[e.ProductID]; dup {
			return fmt.Errorf("%w: duplicate product_id %q", common.ErrInvalidArtifactMap, e.ProductID)
		}
		seen[e.ProductID] = struct{}{}
	}
	return nil
}

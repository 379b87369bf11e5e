// Package artifacts declares the repository contract for the versioned
// product → artifact catalog and its PostgreSQL implementation.
package artifacts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
)

// Repository reads and writes catalog versions. Only the latest published
// version is ever consulted for resolution.
type Repository interface {
	// LatestVersion returns the newest published version, or 0 when the
	// catalog has never been published.
	LatestVersion(ctx context.Context) (int64, error)

	// Resolve returns the mapping for productID at the latest version,
	// or common.ErrorNotFound.
	Resolve(ctx context.Context, productID string) (*models.ArtifactMapping, error)

	// CreateVersion opens a new catalog version and returns its number.
	CreateVersion(ctx context.Context, note string, at time.Time) (int64, error)

	// InsertMapping adds one row to an already created version.
	InsertMapping(ctx context.Context, m models.ArtifactMapping) error
}

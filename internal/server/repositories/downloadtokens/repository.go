// Package downloadtokens declares the server-side repository contract for
// download tokens and its PostgreSQL implementation.
package downloadtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
)

// Repository persists download tokens. Every method that takes a token
// expects the plaintext bearer value; implementations decide how it is stored.
type Repository interface {
	// Insert stores a freshly issued token. A second token for the same
	// (order, line item) pair yields common.ErrorAlreadyExists.
	Insert(ctx context.Context, t *models.DownloadToken) error

	// FindByTokenAndFileKey returns the record issued for exactly this token
	// and file key, or common.ErrorNotFound.
	FindByTokenAndFileKey(ctx context.Context, token, fileKey string) (*models.DownloadToken, error)

	// DeleteByToken removes the record. Deleting a missing token is not an error.
	DeleteByToken(ctx context.Context, token string) error

	// IncrementDownloadCount adds one download in a single conditional step.
	// granted is false when the ceiling had already been reached (or the
	// record is gone), in which case nothing was changed.
	IncrementDownloadCount(ctx context.Context, token string, at time.Time) (count int, granted bool, err error)

	// DeleteExpired purges records whose deadline is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

package downloadtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/cryptox"
	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	lineItemIndex   = "download_tokens_order_line_item_idx"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx). Tokens are stored as digests only.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores t. An empty ID is filled with a new UUID.
func (r *PostgresRepository) Insert(ctx context.Context, t *models.DownloadToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	query := `
		INSERT INTO download_tokens (id, token_hash, order_id, line_item_id, product_id, file_key, display_name,
			expires_at, download_count, max_downloads, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, cryptox.TokenDigest(t.Token), t.OrderID, nullString(t.LineItemID), nullString(t.ProductID),
		t.FileKey, t.DisplayName, t.ExpiresAt, t.DownloadCount, t.MaxDownloads, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == lineItemIndex {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// FindByTokenAndFileKey looks the record up by token digest and file key together.
func (r *PostgresRepository) FindByTokenAndFileKey(ctx context.Context, token, fileKey string) (*models.DownloadToken, error) {
	query := `
		SELECT id, order_id, line_item_id, product_id, file_key, display_name,
			expires_at, download_count, max_downloads, last_downloaded_at, created_at
		FROM download_tokens
		WHERE token_hash = $1 AND file_key = $2
	`

	var (
		lineItemID, productID sql.NullString
		lastDownloadedAt      sql.NullTime
	)
	t := &models.DownloadToken{Token: token}
	err := r.db.QueryRowContext(ctx, query, cryptox.TokenDigest(token), fileKey).Scan(
		&t.ID, &t.OrderID, &lineItemID, &productID, &t.FileKey, &t.DisplayName,
		&t.ExpiresAt, &t.DownloadCount, &t.MaxDownloads, &lastDownloadedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	t.LineItemID = lineItemID.String
	t.ProductID = productID.String
	if lastDownloadedAt.Valid {
		at := lastDownloadedAt.Time
		t.LastDownloadedAt = &at
	}
	return t, nil
}

// DeleteByToken removes the record for token.
func (r *PostgresRepository) DeleteByToken(ctx context.Context, token string) error {
	query := `
		DELETE FROM download_tokens
		WHERE token_hash = $1
	`
	if _, err := r.db.ExecContext(ctx, query, cryptox.TokenDigest(token)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// IncrementDownloadCount bumps the counter only while it is below the ceiling,
// so concurrent redemptions can never push it past max_downloads.
func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, token string, at time.Time) (int, bool, error) {
	query := `
		UPDATE download_tokens
		SET download_count = download_count + 1, last_downloaded_at = $2
		WHERE token_hash = $1 AND download_count < max_downloads
		RETURNING download_count
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, cryptox.TokenDigest(token), at).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return count, true, nil
}

// DeleteExpired removes every record whose deadline passed before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM download_tokens
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

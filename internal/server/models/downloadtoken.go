// Package models defines server-side data models persisted in the database.
package models

import "time"

// DownloadToken is a bearer credential for a bounded number of downloads of
// one artifact before a deadline.
//
// Token holds the plaintext bearer value only where it is known: right after
// issuance, or when a record was looked up by the value presented by a
// customer. The store persists just its digest.
type DownloadToken struct {
	ID          string
	Token       string
	OrderID     string
	LineItemID  string
	ProductID   string
	FileKey     string
	DisplayName string

	ExpiresAt        time.Time
	DownloadCount    int
	MaxDownloads     int
	LastDownloadedAt *time.Time
	CreatedAt        time.Time
}

// Remaining returns how many downloads are still allowed.
func (t *DownloadToken) Remaining() int {
	if n := t.MaxDownloads - t.DownloadCount; n > 0 {
		return n
	}
	return 0
}

// ExpiredAt reports whether the token is unusable at now. The deadline
// itself is still valid.
func (t *DownloadToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Exhausted reports whether every allowed download has been used.
func (t *DownloadToken) Exhausted() bool {
	return t.DownloadCount >= t.MaxDownloads
}

// Package common defines shared constants and sentinel errors used across
// dlkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service authentication.
	ErrorUnauthorized = errors.New("unauthorized")

	// Redemption errors. Each one maps to its own HTTP status.
	ErrMalformedRequest = errors.New("missing token or file parameter")
	ErrInvalidToken     = errors.New("invalid download token")
	ErrTokenExpired     = errors.New("download token expired")
	ErrLimitExceeded    = errors.New("download limit exceeded")
	ErrFileUnavailable  = errors.New("file unavailable")
	ErrRateLimited      = errors.New("rate limited")

	// Issuance errors. Non-fatal to the surrounding order completion.
	ErrIssuanceFailure = errors.New("token issuance failed")
	ErrOrderNotPaid    = errors.New("order is not completed")

	// Catalog errors.
	ErrInvalidArtifactMap = errors.New("invalid artifact map")
)

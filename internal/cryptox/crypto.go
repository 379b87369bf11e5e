// Package cryptox holds the primitives behind download tokens: minting the
// bearer value and deriving the digest that is actually persisted.
package cryptox

import (
	"fmt"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"golang.org/x/crypto/blake2b"
)

// NewDownloadToken returns a fresh hex-encoded bearer token backed by
// common.DownloadTokenBytes of randomness.
func NewDownloadToken() (string, error) {
	t, err := common.MakeRandHexString(common.DownloadTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return t, nil
}

// TokenDigest is the BLAKE2b-256 digest of a bearer token. The store only
// ever sees digests, so a leaked table does not leak working links.
func TokenDigest(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

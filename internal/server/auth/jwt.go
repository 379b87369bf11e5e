// Package auth signs and verifies the service tokens that guard the internal
// fulfillment endpoint.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the calling service's name next to the standard claims.
type Claims struct {
	jwt.RegisteredClaims
	Service string `json:"svc"`
}

// GenerateToken issues an HS256 token for service, valid for validityDuration.
func GenerateToken(service string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Service: service,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetServiceFromToken verifies tokenString and returns the calling service.
// Every failure wraps common.ErrorUnauthorized.
func GetServiceFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	if !token.Valid || claims.Service == "" {
		return "", common.ErrorUnauthorized
	}

	return claims.Service, nil
}

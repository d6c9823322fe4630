// Package token issues the signed, short-lived access tokens embedded in
// render-only URLs.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 15 * time.Minute

// Issuer signs and verifies export-scoped JWT tokens.
type Issuer struct {
	secretKey []byte
	ttl       time.Duration
}

func NewIssuer(secretKey string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{secretKey: []byte(secretKey), ttl: ttl}
}

// RenderToken issues a token granting access to one exported asset's
// render-only view for the issuer's TTL.
func (i *Issuer) RenderToken(assetID, teamID string) (string, error) {
	if len(i.secretKey) == 0 {
		return "", errors.New("render token secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"asset_id": assetID,
		"team_id":  teamID,
		"scope":    "export",
		"exp":      now.Add(i.ttl).Unix(),
		"iat":      now.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a render token and extracts the asset and team it was
// scoped to.
func (i *Issuer) Verify(tokenString string) (assetID, teamID string, err error) {
	if len(i.secretKey) == 0 {
		return "", "", errors.New("render token secret is empty")
	}

	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secretKey, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !tok.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	assetID, ok = claims["asset_id"].(string)
	if !ok {
		return "", "", errors.New("invalid asset_id claim")
	}
	teamID, _ = claims["team_id"].(string)
	return assetID, teamID, nil
}

package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
)

// stateTTL bounds how long a user may stay on the wallet page.
const stateTTL = 15 * time.Minute

// stateClaims binds a sign-in round trip to the pending key it generated.
type stateClaims struct {
	jwt.RegisteredClaims
	PublicKey string `json:"public_key"`
}

// ParseStateKey decodes a base64 ed25519 seed or private key. An empty value
// yields a fresh random key, so pending sign-ins do not survive a restart.
func ParseStateKey(value string) (ed25519.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate state key: %w", err)
		}
		return key, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, fmt.Errorf("decode state key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("state key must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

func (c *Connection) issueState(publicKey string) (string, error) {
	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.AppKeyPrefix,
			Audience:  jwt.ClaimStrings{c.cfg.ContractID},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
		PublicKey: publicKey,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(c.cfg.StateKey)
	if err != nil {
		return "", fmt.Errorf("sign login state: %w", err)
	}
	return token, nil
}

// verifyState returns the public key a state token was issued for.
func (c *Connection) verifyState(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.New(apperrors.CodeLoginStateInvalid, "login state is required")
	}
	var parsed stateClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.cfg.StateKey.Public(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(c.cfg.AppKeyPrefix),
		jwt.WithAudience(c.cfg.ContractID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", mapJWTError(err)
	}
	if strings.TrimSpace(parsed.PublicKey) == "" {
		return "", apperrors.New(apperrors.CodeLoginStateInvalid, "login state carries no public key")
	}
	return parsed.PublicKey, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeLoginStateInvalid, "login state is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrEd25519Verification):
		return apperrors.Wrap(apperrors.CodeLoginStateInvalid, "login state signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.Wrap(apperrors.CodeLoginStateInvalid, "login state was issued for another app", err)
	default:
		return apperrors.Wrap(apperrors.CodeLoginStateInvalid, "login state is invalid", err)
	}
}

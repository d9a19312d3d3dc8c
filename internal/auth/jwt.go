// Package auth verifies bearer credentials for the chat endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken       = errors.New("token is required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRevokedToken       = errors.New("token revoked")
	ErrRevocationDisabled = errors.New("token revocation is not configured")
)

// Verifier resolves a bearer token to the user id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RevocationStore reports whether a token id has been revoked.
type RevocationStore interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// defaultRevocationTTL covers tokens issued without an expiry.
const defaultRevocationTTL = 30 * 24 * time.Hour

// Revoker blacklists a token id until ttl elapses.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// Claims carries the user id the way the mobile app signs it.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret      []byte
	issuer      string
	audience    string
	revocations RevocationStore
}

// Option customises a JWTVerifier.
type Option func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) Option {
	return func(v *JWTVerifier) { v.issuer = iss }
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) Option {
	return func(v *JWTVerifier) { v.audience = aud }
}

// WithRevocations checks token ids against store.
func WithRevocations(store RevocationStore) Option {
	return func(v *JWTVerifier) { v.revocations = store }
}

// NewJWTVerifier builds a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...Option) *JWTVerifier {
	v := &JWTVerifier{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses token and returns its user id.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims, err := v.parse(token)
	if err != nil {
		return "", err
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return "", fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return "", ErrRevokedToken
		}
	}

	return claims.userID(), nil
}

// Revoke blacklists a valid token for the rest of its lifetime.
func (v *JWTVerifier) Revoke(ctx context.Context, token string) error {
	revoker, ok := v.revocations.(Revoker)
	if !ok {
		return ErrRevocationDisabled
	}

	claims, err := v.parse(token)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}

	ttl := defaultRevocationTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return revoker.Revoke(ctx, claims.ID, ttl)
}

func (v *JWTVerifier) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.userID() == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

func (c *Claims) userID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Issue signs a token for userID valid for ttl. Used by local tooling and tests.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.issuer != "" {
		claims.Issuer = v.issuer
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
)

var (
	ErrTokenMissing  = errors.New("no token presented")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrVerifyTimeout = errors.New("token verification timed out")
)

// Identity is the authenticated party attached to a connection or request.
// It is never mutated after a successful Verify.
type Identity struct {
	UserID string
	Role   order.Role
}

// SessionStore answers whether a token is still among the user's active
// sessions. Logout and forced revocation remove it.
type SessionStore interface {
	IsTokenActive(ctx context.Context, userID, token string) (bool, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens. Read-only and safe for concurrent use.
type Verifier struct {
	secret   []byte
	sessions SessionStore
	timeout  time.Duration
}

func NewVerifier(secret string, sessions SessionStore, timeout time.Duration) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		sessions: sessions,
		timeout:  timeout,
	}
}

// Sign issues a token for the identity, valid for ttl.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// Verify checks the token's signature and expiry, then confirms the session
// has not been revoked. The session lookup is bounded by the verifier's
// timeout; exceeding it fails the check rather than stalling the caller.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenMissing
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, ErrTokenInvalid
	}

	id := Identity{UserID: c.Subject, Role: order.Role(c.Role)}
	if id.UserID == "" || !id.Role.Valid() {
		return Identity{}, ErrTokenInvalid
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	active, err := v.sessions.IsTokenActive(lookupCtx, id.UserID, token)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Identity{}, ErrVerifyTimeout
		}
		return Identity{}, fmt.Errorf("session lookup: %w", err)
	}
	if !active {
		return Identity{}, ErrTokenRevoked
	}

	return id, nil
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
)

type stubSessions struct {
	active bool
	err    error
	delay  time.Duration
}

func (s *stubSessions) IsTokenActive(ctx context.Context, userID, token string) (bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return s.active, s.err
}

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)

	want := Identity{UserID: "user-1", Role: order.RoleCourier}
	token, err := v.Sign(want, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerifyMissingToken(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := NewVerifier("other-secret", &stubSessions{active: true}, time.Second)
	token, err := signer.Sign(Identity{UserID: "user-1", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)
	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)
	token, err := v.Sign(Identity{UserID: "user-1", Role: order.RoleCustomer}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyGarbageToken(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)

	_, err := v.Verify(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyUnknownRole(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: true}, time.Second)
	token, err := v.Sign(Identity{UserID: "user-1", Role: order.Role("superuser")}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRevokedSession(t *testing.T) {
	v := NewVerifier("test-secret", &stubSessions{active: false}, time.Second)
	token, err := v.Sign(Identity{UserID: "user-1", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestVerifySessionLookupTimeout(t *testing.T) {
	store := &stubSessions{active: true, delay: 200 * time.Millisecond}
	v := NewVerifier("test-secret", store, 20*time.Millisecond)

	token, err := v.Sign(Identity{UserID: "user-1", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrVerifyTimeout)
}

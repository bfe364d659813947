package postgresql

import (
	"context"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/db"
)

// SessionRepo stores issued tokens so they can be revoked. The realtime gate
// checks it on every connection attempt.
type SessionRepo struct {
	db db.DB
}

func NewSessionRepo(db db.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO sessions (user_id, token, expires_at, created_at)
        VALUES ($1, $2, $3, $4)
    `, userID, token, expiresAt, time.Now().UTC())
	return err
}

// IsTokenActive reports whether the token is a live, unrevoked session of
// the user.
func (r *SessionRepo) IsTokenActive(ctx context.Context, userID, token string) (bool, error) {
	var count int
	err := r.db.ExecQueryRow(ctx, `
        SELECT COUNT(*) FROM sessions
        WHERE user_id = $1 AND token = $2 AND revoked_at IS NULL AND expires_at > $3
    `, userID, token, time.Now().UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Revoke ends one session. Live connections authenticated with the token
// fail their next verify.
func (r *SessionRepo) Revoke(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sessions SET revoked_at = $1
        WHERE user_id = $2 AND token = $3 AND revoked_at IS NULL
    `, time.Now().UTC(), userID, token)
	return err
}

// RevokeAll ends every session of the user (forced logout).
func (r *SessionRepo) RevokeAll(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sessions SET revoked_at = $1
        WHERE user_id = $2 AND revoked_at IS NULL
    `, time.Now().UTC(), userID)
	return err
}

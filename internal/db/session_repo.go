package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"jobtrail/internal/types"
)

// AuthSession is one row of the sessions table, resolved by token hash.
type AuthSession struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// SessionRepo resolves bearer tokens against the sessions table. Tokens are
// stored hashed; the raw token never touches the database.
type SessionRepo struct {
	db DBTX
}

// NewSessionRepo creates a SessionRepo backed by the given database
// connection (pool or transaction).
func NewSessionRepo(db DBTX) *SessionRepo {
	return &SessionRepo{db: db}
}

// GetByTokenHash returns the session for a hashed bearer token, joined with
// the user's role. Returns (nil, nil) when no session matches.
func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*AuthSession, error) {
	const query = `
		SELECT s.user_id, u.role, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND u.deleted_at IS NULL`

	var sess AuthSession
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(&sess.UserID, &sess.Role, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}
	return &sess, nil
}

// DeleteExpired removes sessions past their expiry. Called opportunistically
// by the sweeper; auth correctness does not depend on it.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

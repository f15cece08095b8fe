// Package auth implements bearer token verification for the jobtrail API.
// Tokens are opaque session tokens issued by the account service; this
// package resolves them against the shared sessions table.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"jobtrail/internal/db"
	"jobtrail/internal/types"
)

// SessionSource resolves a hashed token to a live session. Implemented by
// db.SessionRepo.
type SessionSource interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*db.AuthSession, error)
}

// Service verifies bearer tokens. It satisfies the API server's
// Authenticator contract.
type Service struct {
	sessions SessionSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an auth Service.
func NewService(sessions SessionSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Authenticate resolves a raw bearer token to an Actor. The token is hashed
// before lookup so a leaked database dump cannot be replayed as credentials.
func (s *Service) Authenticate(ctx context.Context, token string) (types.Actor, error) {
	if token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "bearer token is empty", nil)
	}

	sess, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return types.Actor{}, err
	}
	if sess == nil {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token not recognized", nil)
	}
	if !sess.ExpiresAt.After(s.now()) {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}

	role := types.ActorRole(sess.Role)
	if role != types.RoleAdmin {
		role = types.RoleUser
	}
	return types.Actor{ID: sess.UserID, Role: role}, nil
}

// HashToken returns the hex SHA-256 digest stored in the sessions table.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

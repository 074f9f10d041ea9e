package repository

import (
	"context"

	"stocktrack/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Missing rows are (nil, nil);
// errors are database failures only.
//
// Create must behave as one atomic unit against concurrent creates for the
// same user: after it returns, the new session is the user's only active one.
type Repository interface {
	// Create invalidates any prior active sessions for the user and inserts
	// the new session in a single transaction.
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// FindLiveByTokenID returns the active, unexpired session with the given
	// token fingerprint, or nil. Callers must still compare the full token
	// hash in constant time.
	FindLiveByTokenID(ctx context.Context, tokenID string) (*domain.Session, error)
	// Touch sets last_activity_at for the session. It never extends expires_at.
	Touch(ctx context.Context, id string) error
	// Invalidate sets active=false. Idempotent; reports whether a live row
	// was actually changed.
	Invalidate(ctx context.Context, id string) (bool, error)
	// InvalidateAllForUser sets active=false on all the user's live sessions
	// and returns how many were changed.
	InvalidateAllForUser(ctx context.Context, userID string) (int64, error)
	// InvalidateAllForUserExcept is InvalidateAllForUser sparing one session.
	InvalidateAllForUserExcept(ctx context.Context, userID, keepID string) (int64, error)
	// ListActiveForUser returns the user's active, unexpired sessions ordered
	// by most recent activity first.
	ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// SweepExpired sets active=false for all sessions whose expiry has passed
	// and returns how many were changed. Run periodically, outside the
	// request path.
	SweepExpired(ctx context.Context) (int64, error)
}

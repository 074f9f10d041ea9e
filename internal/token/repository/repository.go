package repository

import (
	"context"

	"stocktrack/backend/internal/token/domain"
)

// Repository defines persistence for ephemeral tokens.
//
// The consume operations are the double-spend guard: find-and-mark-used is one
// conditional update, so of two concurrent consumes for the same token exactly
// one observes used=false and wins. A miss (wrong, used, or expired) is always
// (nil, nil) — indistinguishable from a token that never existed.
type Repository interface {
	Create(ctx context.Context, t *domain.EphemeralToken) error
	// ConsumeByTokenHash atomically marks the matching unused, unexpired token
	// as used and returns it, or (nil, nil) on any miss.
	ConsumeByTokenHash(ctx context.Context, tokenHash string, purpose domain.Purpose) (*domain.EphemeralToken, error)
	// ConsumeByUserAndCodeHash is the offline path: match on owner and code
	// instead of the opaque token.
	ConsumeByUserAndCodeHash(ctx context.Context, userID, codeHash string, purpose domain.Purpose) (*domain.EphemeralToken, error)
	// MarkUsed marks the token used by id. Idempotent.
	MarkUsed(ctx context.Context, id string) error
	// MarkAllUsedForUser invalidates every live token of the given purpose for
	// the user. Used to supersede old tokens when a new one is issued.
	MarkAllUsedForUser(ctx context.Context, userID string, purpose domain.Purpose) (int64, error)
	// SweepExpired marks all expired-but-unused tokens as used and returns how
	// many were changed.
	SweepExpired(ctx context.Context) (int64, error)
}

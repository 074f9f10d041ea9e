// Package audit records the durable trail of authentication activity:
// who did what, from where, and when. Entries are written on the request
// path but are strictly best-effort; a failed insert never fails the
// operation that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stocktrack/backend/internal/audit/domain"
	auditrepo "stocktrack/backend/internal/audit/repository"
)

// unknownIP is recorded when no client address could be resolved.
const unknownIP = "unknown"

// IPExtractor resolves the client IP from the request context (set by the
// HTTP layer).
type IPExtractor func(context.Context) string

// AuditLogger is the write side of the audit trail as the auth flows see it.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger persists audit entries through the repository. A nil *Logger is a
// valid no-op, so callers never have to guard the write.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger builds a Logger over repo. ipExtractor may be nil, in which case
// entries carry the "unknown" IP.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent appends one entry to the trail. Insert errors are logged and
// swallowed.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, l.newEntry(ctx, userID, action, resource, metadata)); err != nil {
		slog.Warn("audit write failed", "action", action, "resource", resource, "error", err)
	}
}

func (l *Logger) newEntry(ctx context.Context, userID, action, resource, metadata string) *domain.AuditLog {
	ip := unknownIP
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	return &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

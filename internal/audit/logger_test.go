package audit

import (
	"context"
	"errors"
	"testing"

	"stocktrack/backend/internal/audit/domain"
)

type recordingRepo struct {
	entries []*domain.AuditLog
	failure error
}

func (r *recordingRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	if r.failure != nil {
		return r.failure
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingRepo) ListByUser(context.Context, string, int32, int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (r *recordingRepo) single(t *testing.T) *domain.AuditLog {
	t.Helper()
	if len(r.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(r.entries))
	}
	return r.entries[0]
}

func TestLogger_WritesFullEntry(t *testing.T) {
	repo := &recordingRepo{}
	l := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })

	l.LogEvent(context.Background(), "user-1", "login_success", "session", `{"type":"password"}`)

	entry := repo.single(t)
	want := &domain.AuditLog{
		UserID:   "user-1",
		Action:   "login_success",
		Resource: "session",
		IP:       "192.168.1.1",
		Metadata: `{"type":"password"}`,
	}
	if entry.UserID != want.UserID || entry.Action != want.Action ||
		entry.Resource != want.Resource || entry.IP != want.IP || entry.Metadata != want.Metadata {
		t.Errorf("entry = %+v, want fields of %+v", entry, want)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt must be assigned, got ID=%q CreatedAt=%v", entry.ID, entry.CreatedAt)
	}
}

func TestLogger_MissingIPExtractor(t *testing.T) {
	repo := &recordingRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), "user-1", "logout", "session", "")

	if ip := repo.single(t).IP; ip != unknownIP {
		t.Errorf("ip = %q, want %q", ip, unknownIP)
	}
}

func TestLogger_SwallowsInsertFailure(t *testing.T) {
	repo := &recordingRepo{failure: errors.New("connection refused")}
	l := NewLogger(repo, nil)

	// Must neither panic nor surface the error to the caller.
	l.LogEvent(context.Background(), "user-1", "logout", "session", "")
}

func TestLogger_NilReceiverAndNilRepo(t *testing.T) {
	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "user-1", "logout", "session", "")
	NewLogger(nil, nil).LogEvent(context.Background(), "user-1", "logout", "session", "")
}

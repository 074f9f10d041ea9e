package domain

import "time"

// AuditLog represents one auth audit event (login, verification, logout,
// session termination, reset). UserID may be empty for failed attempts where
// no account was resolved.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

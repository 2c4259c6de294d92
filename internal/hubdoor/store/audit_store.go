package store

import (
	"context"
	"time"
)

// AuditRecord is one line of the append-only access audit. Metadata holds
// method-specific details (role, host, event url, wallet balance, ...).
type AuditRecord struct {
	ID          string
	At          time.Time
	Name        string
	Method      string
	PrincipalID string
	Metadata    map[string]string
}

// AuditStore persists granted door openings.
type AuditStore interface {
	RecordAccess(ctx context.Context, rec AuditRecord) error
	// Recent returns up to limit records, newest first. limit <= 0 means 50.
	Recent(ctx context.Context, limit int) ([]AuditRecord, error)
}

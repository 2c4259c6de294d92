package memory

import (
	"context"
	"sync"

	"github.com/commonshub/hubdoor/internal/hubdoor/store"
)

// AuditStore is an in-memory audit log for tests and dev environments.
type AuditStore struct {
	mu      sync.Mutex
	records []store.AuditRecord
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) RecordAccess(_ context.Context, rec store.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *AuditStore) Recent(_ context.Context, limit int) ([]store.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]store.AuditRecord, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Records returns a copy of everything recorded.
func (s *AuditStore) Records() []store.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

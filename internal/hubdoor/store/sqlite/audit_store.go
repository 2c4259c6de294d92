package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/commonshub/hubdoor/internal/db"
	"github.com/commonshub/hubdoor/internal/hubdoor/store"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) RecordAccess(ctx context.Context, rec store.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("RecordAccess metadata: %w", err)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_log(id, at_ms, name, method, principal_id, metadata_json)
VALUES (?, ?, ?, ?, ?, ?);
`, rec.ID, rec.At.UTC().UnixMilli(), rec.Name, rec.Method, rec.PrincipalID, string(metaJSON)); err != nil {
			return fmt.Errorf("RecordAccess insert: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at_ms, name, method, principal_id, metadata_json
FROM access_log
ORDER BY at_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent query: %w", err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		var (
			rec      store.AuditRecord
			atMs     int64
			metaJSON string
		)
		if err := rows.Scan(&rec.ID, &atMs, &rec.Name, &rec.Method, &rec.PrincipalID, &metaJSON); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		rec.At = time.UnixMilli(atMs).UTC()
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("Recent metadata %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

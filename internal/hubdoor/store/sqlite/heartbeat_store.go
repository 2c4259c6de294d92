package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/commonshub/hubdoor/internal/db"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, hb types.Heartbeat) error {
	ip := strings.TrimSpace(hb.IP)
	if ip == "" {
		return nil
	}
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = time.Now().UTC()
	}
	var open int
	if hb.DoorOpen {
		open = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO client_heartbeats(ip, received_at_ms, user_agent, door_open)
VALUES (?, ?, ?, ?);
`, ip, hb.ReceivedAt.UTC().UnixMilli(), hb.UserAgent, open); err != nil {
			return fmt.Errorf("RecordHeartbeat insert: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent heartbeat for every client IP.
func (s *HeartbeatStore) Latest(ctx context.Context) (map[string]types.Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT h.ip, h.received_at_ms, h.user_agent, h.door_open
FROM client_heartbeats h
JOIN (
  SELECT ip, MAX(received_at_ms) AS last_ms
  FROM client_heartbeats
  GROUP BY ip
) l ON l.ip = h.ip AND l.last_ms = h.received_at_ms;
`)
	if err != nil {
		return nil, fmt.Errorf("Latest query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.Heartbeat)
	for rows.Next() {
		var (
			hb     types.Heartbeat
			recvMs int64
			open   int
		)
		if err := rows.Scan(&hb.IP, &recvMs, &hb.UserAgent, &open); err != nil {
			return nil, fmt.Errorf("Latest scan: %w", err)
		}
		hb.ReceivedAt = time.UnixMilli(recvMs).UTC()
		hb.DoorOpen = open == 1
		out[hb.IP] = hb
	}
	return out, rows.Err()
}

// PruneOlderThan deletes heartbeats received before cutoff and reports how
// many rows went.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM client_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

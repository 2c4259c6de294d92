package store

import (
	"context"
	"time"

	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// HeartbeatStore keeps the /check polls of door controllers, keyed by
// client IP.
type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, hb types.Heartbeat) error
	// Latest returns the most recent heartbeat of every client.
	Latest(ctx context.Context) (map[string]types.Heartbeat, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

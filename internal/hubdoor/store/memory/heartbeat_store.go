package memory

import (
	"context"
	"sync"
	"time"

	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// HeartbeatStore keeps every heartbeat per client IP in memory.
type HeartbeatStore struct {
	mu   sync.RWMutex
	data map[string][]types.Heartbeat
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{data: make(map[string][]types.Heartbeat)}
}

func (s *HeartbeatStore) RecordHeartbeat(_ context.Context, hb types.Heartbeat) error {
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[hb.IP] = append(s.data[hb.IP], hb)
	return nil
}

func (s *HeartbeatStore) Latest(_ context.Context) (map[string]types.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.Heartbeat, len(s.data))
	for ip, hbs := range s.data {
		if len(hbs) > 0 {
			out[ip] = hbs[len(hbs)-1]
		}
	}
	return out, nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for ip, hbs := range s.data {
		kept := hbs[:0]
		for _, hb := range hbs {
			if hb.ReceivedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, hb)
		}
		if len(kept) == 0 {
			delete(s.data, ip)
			continue
		}
		s.data[ip] = kept
	}
	return deleted, nil
}

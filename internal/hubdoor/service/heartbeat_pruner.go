package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/hubdoor/store"
)

// HeartbeatPruner periodically deletes /check heartbeats older than the
// retention period. A retention of 0 disables pruning.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	periodic
}

type PrunerConfig struct {
	// RetentionHours is how much heartbeat history to keep. 0 keeps
	// everything.
	RetentionHours int

	// IntervalMinutes is how often the pruner runs. Defaults to 60.
	IntervalMinutes int
}

// NewHeartbeatPruner creates a pruner but does not start it.
func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, c clock.Clock, logger *zap.Logger) *HeartbeatPruner {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	if c == nil {
		c = clock.Real()
	}

	return &HeartbeatPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
		interval:  interval,
		clock:     c,
		logger:    logger.Named("pruner"),
		periodic:  newPeriodic(),
	}
}

// Start prunes immediately and then on every interval until ctx ends or
// Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("heartbeat pruner disabled (retention=0)")
		p.disable()
		return
	}

	p.start(ctx, p.clock, p.interval, p.prune)

	p.logger.Info("heartbeat pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval))
}

func (p *HeartbeatPruner) prune(ctx context.Context) {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("heartbeat prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("heartbeat prune",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}

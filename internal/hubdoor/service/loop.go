package service

import (
	"context"
	"time"

	"github.com/commonshub/hubdoor/internal/clock"
)

// periodic runs a job once immediately and then on every tick of its
// interval until Stop is called or the parent context ends.
type periodic struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeriodic() periodic {
	return periodic{done: make(chan struct{})}
}

func (p *periodic) start(ctx context.Context, c clock.Clock, every time.Duration, job func(context.Context)) {
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.done)

		job(ctx)

		t := c.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				job(ctx)
			}
		}
	}()
}

// disable marks the loop finished without starting it.
func (p *periodic) disable() { close(p.done) }

// Stop signals the loop to exit and waits for it. Stopping a loop that
// was never started is a no-op.
func (p *periodic) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

package service

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/clock"
)

// Fact is one candidate message for the fun-fact pool.
type Fact struct {
	Text      string
	CreatedAt time.Time
	Reactions int
}

// FactSource returns the latest facts posted to the fun-facts channel.
type FactSource interface {
	RecentFacts(ctx context.Context) ([]Fact, error)
}

type FunFactsConfig struct {
	// Interval defaults to 24 hours.
	Interval time.Duration
	// Rand returns a float in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

type weightedFact struct {
	text   string
	weight float64
}

// FunFacts keeps a weighted pool of facts. Recent and well-liked facts are
// picked more often.
type FunFacts struct {
	source FactSource
	clock  clock.Clock
	cfg    FunFactsConfig
	logger *zap.Logger
	periodic

	mu    sync.RWMutex
	facts []weightedFact
	total float64
}

func NewFunFacts(src FactSource, c clock.Clock, cfg FunFactsConfig, logger *zap.Logger) *FunFacts {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if c == nil {
		c = clock.Real()
	}
	return &FunFacts{
		source:   src,
		clock:    c,
		cfg:      cfg,
		logger:   logger.Named("funfacts"),
		periodic: newPeriodic(),
	}
}

func (f *FunFacts) Start(ctx context.Context) {
	f.start(ctx, f.clock, f.cfg.Interval, func(ctx context.Context) {
		if err := f.Load(ctx); err != nil {
			f.logger.Warn("load fun facts failed", zap.Error(err))
		}
	})
}

// Load replaces the pool. On error the previous pool is kept.
func (f *FunFacts) Load(ctx context.Context) error {
	facts, err := f.source.RecentFacts(ctx)
	if err != nil {
		return err
	}

	now := f.clock.Now()
	pool := make([]weightedFact, 0, len(facts))
	var total float64
	for _, fact := range facts {
		if fact.Text == "" {
			continue
		}
		w := Score(fact, now)
		pool = append(pool, weightedFact{text: fact.Text, weight: w})
		total += w
	}

	f.mu.Lock()
	f.facts, f.total = pool, total
	f.mu.Unlock()

	f.logger.Info("fun facts loaded", zap.Int("count", len(pool)))
	return nil
}

// Score weighs a fact as (1 + reactions) / days since it was posted,
// counting partial days as whole ones and never less than one.
func Score(fact Fact, now time.Time) float64 {
	days := math.Ceil(now.Sub(fact.CreatedAt).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return float64(1+fact.Reactions) / days
}

func (f *FunFacts) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.facts)
}

// Pick draws a fact at random, weighted by Score.
func (f *FunFacts) Pick() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.facts) == 0 {
		return "", false
	}

	target := f.cfg.Rand() * f.total
	for _, fact := range f.facts {
		target -= fact.weight
		if target < 0 {
			return fact.text, true
		}
	}
	return f.facts[len(f.facts)-1].text, true
}

// Package retention enforces the age and count limits on stored captures.
package retention

import (
	"context"
	"time"

	"github.com/hpungsan/flightrecorder/internal/logging"
)

// Store is the delete side of the capture store.
type Store interface {
	PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
	PruneKeepRecent(ctx context.Context, n int) (int64, error)
}

// Policy bounds the store. A zero MaxAge or MaxCaptures disables that limit.
type Policy struct {
	MaxAge      time.Duration
	MaxCaptures int
	// Interval between background passes. Zero disables Run.
	Interval time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.MaxAge > 0 || p.MaxCaptures > 0
}

// Result counts the captures removed by one pass.
type Result struct {
	ByAge   int64 `json:"by_age"`
	ByCount int64 `json:"by_count"`
}

// Total returns the number of captures removed.
func (r Result) Total() int64 {
	return r.ByAge + r.ByCount
}

// Pruner applies a Policy to a Store.
type Pruner struct {
	store  Store
	policy Policy
	log    *logging.Logger
}

// New creates a pruner. log may be nil.
func New(store Store, policy Policy, log *logging.Logger) *Pruner {
	if log == nil {
		log = logging.Discard()
	}
	return &Pruner{store: store, policy: policy, log: log}
}

// Policy returns the pruner's policy.
func (p *Pruner) Policy() Policy {
	return p.policy
}

// RunOnce applies the age limit, then the count limit.
// Counts removed before a failure are still returned.
func (p *Pruner) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	if p.policy.MaxAge > 0 {
		n, err := p.store.PruneOlderThan(ctx, p.policy.MaxAge)
		if err != nil {
			return res, err
		}
		res.ByAge = n
	}
	if p.policy.MaxCaptures > 0 {
		n, err := p.store.PruneKeepRecent(ctx, p.policy.MaxCaptures)
		if err != nil {
			return res, err
		}
		res.ByCount = n
	}
	return res, nil
}

// Run prunes immediately, then every Interval until ctx is done.
// It returns at once when the policy is disabled or Interval is zero.
func (p *Pruner) Run(ctx context.Context) {
	if !p.policy.Enabled() || p.policy.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.policy.Interval)
	defer ticker.Stop()

	for {
		p.pass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pruner) pass(ctx context.Context) {
	res, err := p.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Errorf("prune failed: %v", err)
		}
		return
	}
	if res.Total() > 0 {
		p.log.Infof("pruned %d captures (%d by age, %d by count)", res.Total(), res.ByAge, res.ByCount)
	}
}

package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/store"
	"github.com/wolfeidau/unirating/internal/telemetry"
)

// DefaultPruneInterval matches the expired-session sweep of the previous session store.
const DefaultPruneInterval = 15 * time.Minute

// Pruner periodically deletes expired sessions.
type Pruner struct {
	sessions store.SessionStore
	interval time.Duration
}

// NewPruner creates a Pruner. A non-positive interval uses DefaultPruneInterval.
func NewPruner(sessions store.SessionStore, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Pruner{
		sessions: sessions,
		interval: interval,
	}
}

// Run prunes on every tick until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", p.interval).Msg("Session pruner started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Session pruner stopped")
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

// Start runs the pruner in its own goroutine. The returned stop cancels it and
// blocks until any in-flight prune has returned.
func (p *Pruner) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (p *Pruner) prune(ctx context.Context) {
	count, err := p.sessions.DeleteExpired(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune expired sessions")
		return
	}
	if count > 0 {
		telemetry.GetMetrics().SessionsPrunedTotal.Add(ctx, int64(count))
		log.Debug().Int("count", count).Msg("Pruned expired sessions")
	}
}

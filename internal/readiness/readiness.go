// Package readiness blocks process startup until backing datastores answer.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrNotReady is returned when a datastore never answered within the retry budget.
var ErrNotReady = errors.New("datastore not ready")

// Probe is a trivial round-trip check against a single datastore.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Hook runs once after every probe has succeeded, e.g. schema bootstrap.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config controls the retry budget.
type Config struct {
	// Attempts is the maximum number of probe rounds.
	// Default: 30
	Attempts int

	// Delay is the fixed wait between rounds.
	// Default: 2s
	Delay time.Duration

	// ProbeTimeout bounds a single probe round.
	// Default: 5s
	ProbeTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 30
	}
	if c.Delay <= 0 {
		c.Delay = 2 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

// Gate probes datastores with a constant backoff and then runs its hooks exactly once.
type Gate struct {
	cfg    Config
	probes []Probe
	hooks  []Hook

	once     sync.Once
	attempts int
	err      error
}

// New creates a Gate over the given probes.
func New(cfg Config, probes ...Probe) *Gate {
	cfg.ApplyDefaults()
	return &Gate{
		cfg:    cfg,
		probes: probes,
	}
}

// OnReady registers a hook to run after the datastores answer.
func (g *Gate) OnReady(name string, run func(ctx context.Context) error) {
	g.hooks = append(g.hooks, Hook{Name: name, Run: run})
}

// Wait blocks until every probe succeeds or the retry budget is spent.
// Later calls return the result of the first.
func (g *Gate) Wait(ctx context.Context) error {
	g.once.Do(func() {
		g.err = g.wait(ctx)
	})
	return g.err
}

// Attempts returns how many probe rounds the gate used.
func (g *Gate) Attempts() int {
	return g.attempts
}

func (g *Gate) wait(ctx context.Context) error {
	started := time.Now()

	operation := func() (struct{}, error) {
		g.attempts++
		return struct{}{}, g.probe(ctx)
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", g.attempts).
			Int("max_attempts", g.cfg.Attempts).
			Dur("retry_in", next).
			Msg("Datastore not ready")
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(g.cfg.Delay)),
		backoff.WithMaxTries(uint(g.cfg.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, g.attempts, err)
	}

	log.Info().
		Int("attempts", g.attempts).
		Dur("elapsed", time.Since(started)).
		Msg("Datastore ready")

	for _, h := range g.hooks {
		if err := h.Run(ctx); err != nil {
			return fmt.Errorf("readiness hook %s failed: %w", h.Name, err)
		}
		log.Debug().Str("hook", h.Name).Msg("Readiness hook complete")
	}

	return nil
}

func (g *Gate) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()

	for _, p := range g.probes {
		if err := p.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

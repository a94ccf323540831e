// Package auth implements credential storage, session lifecycle and the
// register/login/logout/change-password flows built on them.
package auth

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/wolfeidau/unirating/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted bcrypt hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BcryptHasher runs bcrypt on a fixed set of worker goroutines so request
// goroutines only wait for their own result.
type BcryptHasher struct {
	cost int

	jobs chan func()
	stop chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewBcryptHasher starts workers goroutines hashing at the given cost.
// Zero values select bcrypt.DefaultCost and GOMAXPROCS workers.
func NewBcryptHasher(cost, workers int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	h := &BcryptHasher{
		cost: cost,
		jobs: make(chan func()),
		stop: make(chan struct{}),
	}

	h.wg.Add(workers)
	for range workers {
		go h.worker()
	}

	return h
}

func (h *BcryptHasher) worker() {
	defer h.wg.Done()
	for {
		select {
		case job := <-h.jobs:
			job()
		case <-h.stop:
			return
		}
	}
}

// Close stops the workers and waits for in-flight jobs to finish.
func (h *BcryptHasher) Close() {
	h.closeOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()
}

type hashResult struct {
	hash string
	ok   bool
	err  error
}

// submit hands fn to a worker and waits for its result.
func (h *BcryptHasher) submit(ctx context.Context, op string, fn func() hashResult) (hashResult, error) {
	if err := ctx.Err(); err != nil {
		return hashResult{}, err
	}

	// buffered so a worker never blocks on a caller that gave up
	done := make(chan hashResult, 1)
	job := func() {
		started := time.Now()
		res := fn()
		telemetry.GetMetrics().PasswordHashDuration.Record(ctx,
			float64(time.Since(started).Microseconds())/1000,
			metric.WithAttributes(attribute.String("operation", op)))
		done <- res
	}

	if err := h.enqueue(ctx, job); err != nil {
		return hashResult{}, err
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return hashResult{}, ctx.Err()
	}
}

func (h *BcryptHasher) enqueue(ctx context.Context, job func()) error {
	waiting := telemetry.GetMetrics().PasswordHashWaiting
	waiting.Add(ctx, 1)
	defer waiting.Add(ctx, -1)

	select {
	case h.jobs <- job:
		return nil
	case <-h.stop:
		return ErrHasherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	res, err := h.submit(ctx, "hash", func() hashResult {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		return hashResult{hash: string(hash), err: err}
	})
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	if errors.Is(res.err, bcrypt.ErrPasswordTooLong) {
		return "", &ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	if res.err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(res.err)
	}

	return res.hash, nil
}

// Verify checks if the password matches the hash.
func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	res, err := h.submit(ctx, "verify", func() hashResult {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return hashResult{}
		}
		return hashResult{ok: err == nil, err: err}
	})
	if err != nil {
		return false, oops.Code("AUTH_VERIFY_FAILED").Wrap(err)
	}

	if res.err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(res.err)
	}

	return res.ok, nil
}

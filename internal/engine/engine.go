// Package engine reconciles a parsed tasks document and its dependency
// graph onto a remote tracker. Reconciliation is idempotent: every
// creation is preceded by a natural-key lookup, so re-running after a
// partial failure re-discovers prior work instead of duplicating it.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/specsync/specsync/internal/log"
	"github.com/specsync/specsync/internal/remote"
	"github.com/specsync/specsync/internal/state"
)

// DefaultRateLimitRetries bounds how often a single remote call is
// retried after a rate-limit pause
const DefaultRateLimitRetries = 3

// Engine drives one sync invocation. It is single-threaded: remote
// calls are issued sequentially because later calls consume
// identifiers returned by earlier ones. Concurrent invocations against
// the same project are unsafe; the natural-key lookup is eventually
// consistent, not a lock.
type Engine struct {
	tracker    remote.Tracker
	logger     *log.Logger
	maxRetries int
	onStep     func(label string)
}

// Options configures an Engine
type Options struct {
	Logger *log.Logger
	// RateLimitRetries overrides DefaultRateLimitRetries when positive
	RateLimitRetries int
	// OnStep is invoked after each applied entity or link, for
	// progress display
	OnStep func(label string)
}

// New creates an engine bound to a tracker
func New(tracker remote.Tracker, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	retries := opts.RateLimitRetries
	if retries <= 0 {
		retries = DefaultRateLimitRetries
	}
	return &Engine{
		tracker:    tracker,
		logger:     logger,
		maxRetries: retries,
		onStep:     opts.OnStep,
	}
}

func (e *Engine) step(format string, args ...any) {
	if e.onStep != nil {
		e.onStep(fmt.Sprintf(format, args...))
	}
}

// KindCounts summarizes outcomes for one entity kind
type KindCounts struct {
	Reused  int `json:"reused"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Failure records a natural key that did not converge and why, so a
// re-run is actionable without re-inspecting the document
type Failure struct {
	Key remote.NaturalKey `json:"key"`
	Err error             `json:"-"`
}

// ConsistencyWarning records a matched entity whose stored content
// diverged from the local document. Divergence proceeds with an update
// and is never fatal.
type ConsistencyWarning struct {
	Key    remote.NaturalKey `json:"key"`
	Detail string            `json:"detail"`
}

// Result is the outcome of one sync invocation
type Result struct {
	UpToDate bool                `json:"up_to_date"`
	Hash     string              `json:"hash"`
	Project  *remote.ProjectInfo `json:"project,omitempty"`

	Counts map[remote.Kind]*KindCounts `json:"counts,omitempty"`

	Linked       int `json:"linked"`
	LinksFailed  int `json:"links_failed"`
	LinksSkipped int `json:"links_skipped"`

	Failures []Failure            `json:"failures,omitempty"`
	Warnings []ConsistencyWarning `json:"warnings,omitempty"`

	// State is the sync state to persist; nil for up-to-date runs
	State *state.SyncState `json:"-"`
}

// Partial reports whether any entity or link failed to converge
func (r *Result) Partial() bool {
	return len(r.Failures) > 0 || r.LinksFailed > 0
}

func (r *Result) counts(kind remote.Kind) *KindCounts {
	if r.Counts == nil {
		r.Counts = make(map[remote.Kind]*KindCounts)
	}
	c, ok := r.Counts[kind]
	if !ok {
		c = &KindCounts{}
		r.Counts[kind] = c
	}
	return c
}

// call invokes one remote operation, pausing and retrying on
// rate-limit signals for at least the remote-reported delay
func (e *Engine) call(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		retryAfter, limited := remote.IsRateLimited(err)
		if !limited || attempt >= e.maxRetries {
			return err
		}
		e.logger.Warn("rate limited, pausing before retry",
			"retry_after", retryAfter, "attempt", attempt+1)
		if err := sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/riverside-labs/pgmux/internal/errcat"
)

// RetryConfig configures the retry policy. Zero values are replaced by
// defaults from WithDefaults.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	Jitter         bool
	RetryOn        func(error) bool
	PerCallTimeout time.Duration
}

// WithDefaults returns a copy of c with unset fields replaced.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 50 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	return c
}

// Policy runs a thunk under the spec.md §4.3 retry algorithm: on
// failure, consult a predicate (default: is the category transient?)
// and a deterministic backoff schedule with optional jitter. It
// implements backoff.BackOff so it can be handed to any code expecting
// the cenkalti/backoff interface, the same interface the teacher's own
// retry wrapper (connection_pool_retryable.go) drives with
// backoff.RetryNotify.
type Policy struct {
	cfg RetryConfig
	log Logger
	cur time.Duration
}

var _ backoff.BackOff = (*Policy)(nil)

// NewPolicy constructs a Policy from cfg, defaulting unset fields.
func NewPolicy(cfg RetryConfig, log Logger) *Policy {
	p := &Policy{cfg: cfg.WithDefaults(), log: orNop(log)}
	p.Reset()
	return p
}

// NextBackOff advances and returns the next delay, satisfying
// backoff.BackOff. Attempt-count bounding is Do's responsibility, not
// this method's; it never returns backoff.Stop.
func (p *Policy) NextBackOff() time.Duration {
	delay := p.cur
	if p.cfg.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	}
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}

	next := time.Duration(math.Ceil(float64(p.cur) * p.cfg.BackoffFactor))
	if next > p.cfg.MaxDelay {
		next = p.cfg.MaxDelay
	}
	p.cur = next

	return delay
}

// Reset restarts the schedule at InitialDelay, satisfying backoff.BackOff.
func (p *Policy) Reset() {
	if p.cfg.InitialDelay < 0 {
		p.cur = 0
		return
	}
	p.cur = p.cfg.InitialDelay
}

func (p *Policy) shouldRetry(err error) bool {
	if p.cfg.RetryOn != nil {
		return p.cfg.RetryOn(err)
	}
	return errcat.Classify(err).Retryable()
}

// Do runs fn under this policy and br (which may be nil for retry
// without a breaker), retrying up to cfg.MaxAttempts times while
// shouldRetry(err) holds. The breaker is consulted before each attempt
// and updated after it, so every failed attempt counts as one breaker
// failure and a retried-and-eventually-successful call ends with one
// breaker success, per spec.md §7.
func Do[T any](ctx context.Context, p *Policy, br *Breaker, opName string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p.Reset()

	for attempt := 1; ; attempt++ {
		if br != nil {
			if err := br.Allow(); err != nil {
				return zero, err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.PerCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.PerCallTimeout)
		}
		result, err := fn(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if br != nil {
				br.OnSuccess()
			}
			return result, nil
		}

		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = errcat.New(errcat.Timeout, "operation exceeded its per-call timeout")
		}

		if br != nil {
			br.OnFailure()
		}

		if attempt >= p.cfg.MaxAttempts || !p.shouldRetry(err) {
			return zero, errcat.Wrap(err)
		}

		wait := p.NextBackOff()
		p.log.Info("retrying operation", "op_name", opName, "attempt", attempt, "wait", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, errcat.Wrap(ctx.Err())
		}
	}
}

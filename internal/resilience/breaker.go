package resilience

import (
	"strings"
	"sync"
	"time"

	"github.com/riverside-labs/pgmux/internal/errcat"
)

// BreakerConfig configures the three-state circuit breaker. Zero
// values are replaced by defaults from WithDefaults.
type BreakerConfig struct {
	FailureThreshold         int
	Cooldown                 time.Duration
	HalfOpenMaxCalls         int
	HalfOpenSuccessesToClose int
}

// WithDefaults returns a copy of c with unset fields replaced by the
// spec.md §4.3 defaults (5 / 10s / 2 / 2).
func (c BreakerConfig) WithDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 2
	}
	if c.HalfOpenSuccessesToClose <= 0 {
		c.HalfOpenSuccessesToClose = 2
	}
	return c
}

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "OPEN"
	case stateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// ErrOpen and ErrTrialLimit are the sentinel causes a Breaker rejection
// unwraps to, for callers that want to identify a rejection with
// errors.Is regardless of which actor's breaker produced it. Neither is
// ever retried.
var (
	ErrOpen       = errcat.New(errcat.Connection, "circuit breaker is open")
	ErrTrialLimit = errcat.New(errcat.Connection, "trial limit reached")
)

// Breaker is a three-state circuit breaker (CLOSED/OPEN/HALF_OPEN), one
// instance per actor. It generalizes the two-state atomic CAS guard
// the teacher's connection_pool/state.go uses for reconnect gating into
// a full half-open trial count.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	log      Logger
	name     string
	isWorker bool

	st                state
	consecutiveFails  int
	openedAt          time.Time
	halfOpenPermits   int
	halfOpenSuccesses int
}

// NewBreaker constructs a Breaker in the CLOSED state. name identifies the
// actor for logging and, when it names a worker (workerrt.Runtime.Run's
// "worker-<id>" convention), for the rejection message spec.md §4.2
// requires workers to use.
func NewBreaker(cfg BreakerConfig, log Logger, name string) *Breaker {
	return &Breaker{
		cfg:      cfg.WithDefaults(),
		log:      orNop(log),
		name:     name,
		isWorker: strings.HasPrefix(name, "worker"),
		st:       stateClosed,
	}
}

// openError renders ErrOpen with the actor-specific text spec.md §4.1/
// §4.2 specifies: "Circuit breaker is open" for the dispatcher's own
// (local pool) breaker, "Worker circuit breaker is open" for a worker's.
// Wrapping ErrOpen as Cause keeps errors.Is(err, ErrOpen) true no matter
// which message was rendered.
func (b *Breaker) openError() *errcat.WrappedError {
	msg := "Circuit breaker is open"
	if b.isWorker {
		msg = "Worker circuit breaker is open"
	}
	return &errcat.WrappedError{Message: msg, Category: errcat.Connection, Cause: ErrOpen}
}

// Allow decides, under the current state, whether a call may proceed,
// performing the OPEN -> HALF_OPEN transition itself once the cooldown
// has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			b.log.Warn("breaker rejected call while open", "name", b.name)
			return b.openError()
		}
		b.st = stateHalfOpen
		b.halfOpenSuccesses = 0
		b.halfOpenPermits = b.cfg.HalfOpenMaxCalls
		b.log.Info("breaker half-open", "name", b.name)
		fallthrough
	case stateHalfOpen:
		if b.halfOpenPermits <= 0 {
			return ErrTrialLimit
		}
		b.halfOpenPermits--
		return nil
	}
	return nil
}

// OnSuccess records a successful protected call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateClosed:
		b.consecutiveFails = 0
	case stateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessesToClose {
			b.st = stateClosed
			b.consecutiveFails = 0
			b.log.Info("breaker closed", "name", b.name)
		}
	}
}

// OnFailure records a failed protected call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.open()
		}
	case stateHalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.st = stateOpen
	b.consecutiveFails = 0
	b.openedAt = time.Now()
	b.halfOpenPermits = b.cfg.HalfOpenMaxCalls
	b.halfOpenSuccesses = 0
	b.log.Warn("breaker opened", "name", b.name)
}

// State returns the breaker's current state as a string, for
// diagnostics (Dispatcher.Stats).
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st.String()
}

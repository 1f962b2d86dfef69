package pgmux

import (
	"errors"
	"runtime"

	"github.com/riverside-labs/pgmux/internal/resilience"
)

// RetryConfig configures the exponential-backoff retry policy applied
// around every protected call. Zero values are replaced by defaults in
// New. It is a type alias for resilience.RetryConfig: the dispatcher's
// retry policy and every worker runtime's independent retry policy are
// built from the identical config shape.
type RetryConfig = resilience.RetryConfig

// CircuitBreakerConfig configures the three-state circuit breaker.
// Zero values are replaced by defaults in New. It is a type alias for
// resilience.BreakerConfig.
type CircuitBreakerConfig = resilience.BreakerConfig

// Config configures a Dispatcher. ConnectionString and the resulting
// Dispatcher are immutable once New returns; there is no dynamic
// reconfiguration.
type Config struct {
	// ConnectionString is a libpq/pgx connection URL. Required.
	ConnectionString string
	// Max is the total connection budget M shared between the local
	// pool and the worker fleet. Defaults to 10.
	Max int
	// MaxWorkers is the worker count W. Zero disables Task and Session.
	// Nil defaults to runtime.NumCPU(); to explicitly disable workers,
	// set MaxWorkers to a pointer to 0.
	MaxWorkers *int
	Retry      RetryConfig
	Breaker    CircuitBreakerConfig
	Logger     Logger
}

var errEmptyConnectionString = errors.New("pgmux: connection string must not be empty")

func (c Config) validate() error {
	if c.ConnectionString == "" {
		return errEmptyConnectionString
	}
	// Max == 0 means "unset, take the default of 10" (see withDefaults);
	// only an explicit negative value is invalid.
	if c.Max < 0 {
		return errors.New("pgmux: max must be >= 0")
	}
	if c.MaxWorkers != nil && *c.MaxWorkers < 0 {
		return errors.New("pgmux: max workers must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Max <= 0 {
		c.Max = 10
	}
	if c.MaxWorkers == nil {
		n := runtime.NumCPU()
		c.MaxWorkers = &n
	}
	c.Retry = c.Retry.WithDefaults()
	c.Breaker = c.Breaker.WithDefaults()
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	return c
}

// workers returns the resolved worker count after defaulting.
func (c Config) workers() int {
	if c.MaxWorkers == nil {
		return runtime.NumCPU()
	}
	return *c.MaxWorkers
}

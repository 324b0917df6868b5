package retry

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config controls exponential backoff.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// DialConfig is used to reach the ledger node at startup, which may still be
// booting when the daemon starts.
func DialConfig() *Config {
	return &Config{
		MaxAttempts: 10,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  1.5,
	}
}

type Func func() error

type IsRetryable func(error) bool

var transientErrors = []string{
	"connection refused",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"no such host",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"context deadline exceeded",
	"EOF",
	"502 Bad Gateway",
	"503 Service Unavailable",
}

// IsTransient reports whether err looks like a network hiccup rather than a
// rejection by the node.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, s := range transientErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, attempts run
// out or ctx is done.
func Do(ctx context.Context, cfg *Config, fn Func, isRetryable IsRetryable) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if isRetryable == nil {
		isRetryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Infof("succeeded on attempt %d", attempt)
			}
			return nil
		}

		lastErr = err
		log.Warnf("attempt %d/%d failed: %v", attempt, cfg.MaxAttempts, err)

		if attempt == cfg.MaxAttempts {
			break
		}
		if !isRetryable(err) {
			return err
		}

		delay := calculateDelay(cfg, attempt)
		log.Debugf("waiting %v before next attempt", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return errors.Wrapf(lastErr, "all %d attempts failed", cfg.MaxAttempts)
}

func calculateDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling through after maxFailures consecutive
// failures, and lets one call through again after resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailTime time.Time
	state        State
	now          func() time.Time
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

func (cb *CircuitBreaker) Execute(fn Func) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		log.Debugf("circuit breaker: open -> half-open")
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != StateOpen {
				log.Warnf("circuit breaker opened after %d failures", cb.failures)
			}
			cb.state = StateOpen
		}
		return err
	}

	if cb.state == StateHalfOpen {
		log.Infof("circuit breaker: half-open -> closed")
	}
	cb.state = StateClosed
	cb.failures = 0

	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

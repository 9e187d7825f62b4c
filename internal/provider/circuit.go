package provider

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while a provider is cooling down.
// The orchestrator treats it like any other provider failure, so an open
// azure circuit simply shifts traffic onto the deepseek fallback.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the lifecycle position of one provider's breaker.
type CircuitState int

const (
	// CircuitClosed passes every request through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets live traffic through while the breaker decides
	// whether the provider has recovered.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a per-provider breaker. Zero values take the
// defaults noted on each field.
type CircuitBreakerConfig struct {
	// FailureThreshold is the run of consecutive failures that trips a
	// closed breaker. Default 5.
	FailureThreshold int
	// SuccessThreshold is the run of successes a half-open breaker needs
	// before it closes again. Default 2.
	SuccessThreshold int
	// Timeout is how long a tripped breaker rejects requests before it
	// probes the provider again. Default 30s.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used when the config
// file sets nothing.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards a single upstream model provider. The client keeps
// one per provider, so a dead backend stops burning its own retry budget
// without touching the healthy ones.
//
// Only consecutive failures count: any success while closed clears the
// streak, since a provider that answers at all is not the hard-down case
// the breaker exists for.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failureStreak  int
	recoveryStreak int
	openedAt       time.Time
}

// NewCircuitBreaker creates a closed breaker, filling in defaults for any
// zero config values.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a request may proceed. An open breaker whose
// cooldown has elapsed moves to half-open and admits the request as a
// recovery probe, which is why this takes the write lock.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if time.Since(cb.openedAt) <= cb.cfg.Timeout {
		return ErrCircuitOpen
	}
	cb.state = CircuitHalfOpen
	cb.recoveryStreak = 0
	return nil
}

// Success records a completed provider call.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureStreak = 0
	case CircuitHalfOpen:
		cb.recoveryStreak++
		if cb.recoveryStreak >= cb.cfg.SuccessThreshold {
			cb.toClosed()
		}
	}
}

// Failure records a failed provider call. Retries inside the client count
// as a single failure here; only the final outcome reaches the breaker.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureStreak++
		if cb.failureStreak >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case CircuitHalfOpen:
		// The provider is still unhealthy. Restart the cooldown.
		cb.trip()
	}
}

// State returns the current state for logging and diagnostics.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.openedAt = time.Now()
	cb.recoveryStreak = 0
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = CircuitClosed
	cb.failureStreak = 0
	cb.recoveryStreak = 0
}

package marketdata

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned when an exchange has failed too often recently.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Number of failures before opening
	SuccessThreshold int           `json:"success_threshold"` // Number of successes to close from half-open
	Timeout          time.Duration `json:"timeout"`           // Time to wait before trying half-open
}

// CircuitBreaker guards calls to a single exchange. Only transport failures
// are reported to it; "symbol not found" answers count as successes.
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	logger          *logrus.Logger
	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastStateChange time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           Closed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Allow reports whether a call may proceed, moving Open to HalfOpen once the
// timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(HalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// Success records a successful call.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.failureCount = 0
	case HalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(Closed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// Failure records a failed call.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(Open)
		}
	case HalfOpen:
		// Any failure in half-open state should open the circuit
		cb.failureCount++
		cb.successCount = 0
		cb.setState(Open)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(Closed)
	cb.failureCount = 0
	cb.successCount = 0
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
		"failure_count":   cb.failureCount,
	}).Info("Circuit breaker state changed")
}

// breakerSet lazily creates one circuit breaker per exchange.
type breakerSet struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	logger   *logrus.Logger
	breakers map[string]*CircuitBreaker
}

func newBreakerSet(config CircuitBreakerConfig, logger *logrus.Logger) *breakerSet {
	return &breakerSet{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (s *breakerSet) get(exchange string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if breaker, ok := s.breakers[exchange]; ok {
		return breaker
	}
	breaker := NewCircuitBreaker(exchange, s.config, s.logger)
	s.breakers[exchange] = breaker
	return breaker
}

func (s *breakerSet) states() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.breakers))
	for name, breaker := range s.breakers {
		out[name] = breaker.State().String()
	}
	return out
}

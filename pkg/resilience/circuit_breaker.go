package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // failures before opening
	SuccessThreshold int           // half-open successes before closing
	OpenTimeout      time.Duration // time after the last failure before a trial call

	Clock  Clock
	Logger *zap.Logger
	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns the defaults used for backing store
// protection.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker fails fast once a dependency keeps failing. One breaker is
// created per protected resource and lives for the process lifetime.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	stateChangedAt  time.Time

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	clock         Clock
	logger        *zap.Logger
	onStateChange func(name string, from, to State)
}

type BreakerStats struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	SuccessCount     int           `json:"success_count"`
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout"`
	LastFailureTime  time.Time     `json:"last_failure_time"`
	StateChangedAt   time.Time     `json:"state_changed_at"`
	TimeInState      time.Duration `json:"time_in_state"`
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		stateChangedAt:   cfg.Clock.Now(),
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		clock:            cfg.Clock,
		logger:           cfg.Logger.With(zap.String("breaker", cfg.Name)),
		onStateChange:    cfg.OnStateChange,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn through the breaker. While open it returns an error
// wrapping ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return cb.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback is Execute, but a rejected call returns
// fallback(ctx, openErr) instead of the open error.
func (cb *CircuitBreaker) ExecuteWithFallback(
	ctx context.Context,
	fn func(context.Context) error,
	fallback func(context.Context, error) error,
) error {
	if err := cb.beforeCall(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clock.Now().Sub(cb.lastFailureTime) >= cb.openTimeout {
			cb.transition(StateHalfOpen)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	// the caller gave up; says nothing about the dependency
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure(err)
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.lastFailureTime = cb.clock.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.logger.Warn("circuit breaker opening, failures exceeded threshold",
				zap.Int("failures", cb.failureCount), zap.Error(err))
			cb.transition(StateOpen)
		}

	case StateHalfOpen:
		cb.logger.Warn("circuit breaker re-opening, half-open trial failed", zap.Error(err))
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.stateChangedAt = cb.clock.Now()
	cb.successCount = 0
	if to == StateClosed {
		cb.failureCount = 0
	}

	cb.logger.Info("circuit breaker state changed",
		zap.Stringer("from", from), zap.Stringer("to", to))
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed with counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
	cb.logger.Info("circuit breaker reset")
}

func (cb *CircuitBreaker) GetStats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		FailureThreshold: cb.failureThreshold,
		SuccessThreshold: cb.successThreshold,
		OpenTimeout:      cb.openTimeout,
		LastFailureTime:  cb.lastFailureTime,
		StateChangedAt:   cb.stateChangedAt,
		TimeInState:      cb.clock.Now().Sub(cb.stateChangedAt),
	}
}

package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

type RetryConfig struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the relative spread applied to every delay, 0.1 means ±10%.
	Jitter float64

	Logger  *zap.Logger
	OnRetry func(name string, attempt int, delay time.Duration, err error)
}

func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		Name:       name,
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Jitter:     0.1,
	}
}

// RetryPolicy retries failed operations with capped exponential backoff.
// Waiting between attempts blocks the calling goroutine.
type RetryPolicy struct {
	name       string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     float64

	mu   sync.Mutex
	rand *rand.Rand

	logger  *zap.Logger
	onRetry func(name string, attempt int, delay time.Duration, err error)
}

func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig(cfg.Name)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RetryPolicy{
		name:       cfg.Name,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		jitter:     cfg.Jitter,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     cfg.Logger.With(zap.String("retry", cfg.Name)),
		onRetry:    cfg.OnRetry,
	}
}

func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// Delay returns the wait before retry number attempt (0-based):
// min(maxDelay, baseDelay*2^attempt) with jitter applied.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.maxDelay)
	if exp := float64(p.baseDelay) * math.Pow(2, float64(attempt)); exp < d {
		d = exp
	}

	p.mu.Lock()
	r := p.rand.Float64()
	p.mu.Unlock()

	return time.Duration(d * (1 + p.jitter*(2*r-1)))
}

// Execute runs fn and retries it up to MaxRetries times while it fails with
// a retryable error. With no retryable errors given every error is
// retryable. A non-retryable error is returned untouched at once; when the
// retries run out the last error is returned. Canceling ctx stops further
// attempts but never interrupts a running one.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error, retryable ...error) error {
	var b backoff.BackOff = &policyBackOff{policy: p}
	b = backoff.WithMaxRetries(b, uint64(p.maxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err, retryable) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		attempt++
		p.logger.Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", p.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))
		if p.onRetry != nil {
			p.onRetry(p.name, attempt, delay, err)
		}
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err != nil && attempt == p.maxRetries && isRetryable(err, retryable) {
		p.logger.Error("retries exhausted", zap.Int("attempts", attempt+1), zap.Error(err))
	}
	return err
}

func isRetryable(err error, retryable []error) bool {
	if len(retryable) == 0 {
		return true
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// policyBackOff adapts Delay to backoff.BackOff.
type policyBackOff struct {
	policy  *RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

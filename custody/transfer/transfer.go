// Package transfer provides outbound value transfer adapters for the
// custody vault.
//
// The vault only knows the custody.Transferor interface; this package
// supplies a function adapter and a circuit-breaking decorator so an
// unhealthy transfer route fails fast instead of hammering a dead
// destination. There is deliberately no retry decorator: a failed withdraw
// is rolled back and surfaced to the caller, who decides whether to
// re-invoke.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-custody/custody"
)

// ErrNilTransferor is returned when a decorator is given no inner transferor.
var ErrNilTransferor = errors.New("transferor is nil")

// Func adapts a plain function to the custody.Transferor interface.
type Func func(ctx context.Context, recipient custody.Identity, amount decimal.Decimal) error

// Transfer calls the wrapped function.
func (f Func) Transfer(ctx context.Context, recipient custody.Identity, amount decimal.Decimal) error {
	return f(ctx, recipient, amount)
}

// BreakerConfig tunes the circuit breaker around a transfer route.
type BreakerConfig struct {
	// Name labels the breaker in logs. Defaults to "custody-transfer".
	Name string
	// ConsecutiveFailures trips the breaker once reached. Defaults to 5.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	// Defaults to 30 seconds.
	Timeout time.Duration
	// MaxRequests caps probe requests while half-open. Defaults to 1.
	MaxRequests uint32
	// Logger receives state-change logs. Defaults to zap.NewNop.
	Logger *zap.Logger
}

func (c *BreakerConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "custody-transfer"
	}

	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Breaker is a custody.Transferor that wraps another transferor with a
// circuit breaker. While the breaker is open, transfers fail immediately;
// the vault rolls the withdraw back as a transfer failure.
type Breaker struct {
	inner   custody.Transferor
	breaker *gobreaker.CircuitBreaker
}

// Compile-time assertion: *Breaker implements custody.Transferor.
var _ custody.Transferor = (*Breaker)(nil)

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner custody.Transferor, config BreakerConfig) (*Breaker, error) {
	if inner == nil {
		return nil, ErrNilTransferor
	}

	config.applyDefaults()
	logger := config.Logger

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("custody: transfer breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Breaker{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}, nil
}

// Transfer executes the inner transfer through the breaker.
func (b *Breaker) Transfer(ctx context.Context, recipient custody.Identity, amount decimal.Decimal) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Transfer(ctx, recipient, amount)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("transfer route unavailable: %w", err)
	}

	return err
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/teemow/inboxtriage/internal/logging"
)

// BreakerConfig configures the circuit breaker around a Completer.
type BreakerConfig struct {
	Name string

	// ConsecutiveFailures trips the breaker after this many failures in a row.
	ConsecutiveFailures uint32

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultBreakerConfig returns the settings used by the triage command.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "ai-completions",
		ConsecutiveFailures: 5,
		Timeout:             60 * time.Second,
	}
}

// Breaker stops calling a failing completion service until Timeout has
// passed.
type Breaker struct {
	next Completer
	cb   *gobreaker.CircuitBreaker
}

var _ Completer = (*Breaker)(nil)

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Completer, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := logging.WithService(cfg.Logger, "ai")
	threshold := cfg.ConsecutiveFailures

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		// Cancellation by the caller says nothing about the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete forwards to the wrapped Completer unless the breaker is open,
// in which case it fails fast with ErrUnavailable.
func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State returns the breaker state as a string: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

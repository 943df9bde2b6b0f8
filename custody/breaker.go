package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker rejects moves.
var ErrUnavailable = errors.New("custody: transfer service unavailable")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Name string

	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Timeout is how long the breaker stays open before letting a trial request through.
	Timeout time.Duration

	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "custody",
		ConsecutiveFailures: 5,
		MaxRequests:         1,
		Timeout:             30 * time.Second,
	}
}

// Breaker guards a remote Transferer with a circuit breaker. Business
// rejections such as insufficient funds do not count as failures.
type Breaker struct {
	next   Transferer
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreaker wraps next.
func NewBreaker(next Transferer, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	b := &Breaker{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("custody breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrInsufficientFunds) ||
				errors.Is(err, ErrInvalidMove)
		},
	})
	return b
}

// Transfer implements Transferer.
func (b *Breaker) Transfer(ctx context.Context, m Move) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Transfer(ctx, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// State reports the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }

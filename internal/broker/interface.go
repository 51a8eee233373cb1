// Package broker provides the market-data and chain lookups the trader needs
// from a brokerage, plus resilience wrappers around them.
package broker

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Broker defines the interface for interacting with a brokerage
type Broker interface {
	marketdata.Streamer

	// FetchChain returns every listed expiration of the underlying's options.
	FetchChain(ctx context.Context, underlying string) (Chain, error)
	// IVRank returns the implied-volatility rank of the underlying as reported
	// by the broker (ratio or percentage, see strategy.NormalizeIVRank).
	IVRank(ctx context.Context, underlying string) (float64, error)
}

// Chain maps an expiration date (models.DateLayout) to its contracts.
type Chain map[string][]models.Contract

// ForDate returns the contracts expiring on day's calendar date.
func (c Chain) ForDate(day time.Time) ([]models.Contract, bool) {
	contracts, ok := c[day.Format(models.DateLayout)]
	return contracts, ok && len(contracts) > 0
}

// Expirations returns the expiration dates in ascending order.
func (c Chain) Expirations() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Add appends a contract under its expiration date.
func (c Chain) Add(contract models.Contract) {
	key := contract.Expiration.Format(models.DateLayout)
	c[key] = append(c[key], contract)
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after a 60% failure rate over at least
// five calls and stays open for 30 seconds.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker, log *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, DefaultCircuitBreakerSettings(), log)
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings, log *logrus.Logger) *CircuitBreakerBroker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warnf("Circuit breaker %s state changed", name)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State returns the current breaker state.
func (c *CircuitBreakerBroker) State() gobreaker.State {
	return c.breaker.State()
}

// FetchChain wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) FetchChain(ctx context.Context, underlying string) (Chain, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (Chain, error) {
		return b.FetchChain(ctx, underlying)
	})
}

// IVRank wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) IVRank(ctx context.Context, underlying string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.IVRank(ctx, underlying)
	})
}

// Subscribe wraps opening a stream with the circuit breaker. Events flowing
// on an open stream are not counted.
func (c *CircuitBreakerBroker) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (<-chan marketdata.Event, error) {
		return b.Subscribe(ctx, kind, symbols)
	})
}

// Package retry re-runs broker lookups that fail transiently, with bounded
// exponential backoff and jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps the broker lookups the entry cycle depends on.
type Client struct {
	broker broker.Broker
	logger *logrus.Logger
	config Config
}

func NewClient(b broker.Broker, logger *logrus.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// FetchChainWithRetry fetches the option chain of underlying.
func (c *Client) FetchChainWithRetry(ctx context.Context, underlying string) (broker.Chain, error) {
	return Do(ctx, c, "fetch chain "+underlying, func(ctx context.Context) (broker.Chain, error) {
		return c.broker.FetchChain(ctx, underlying)
	})
}

// IVRankWithRetry looks up the IV rank of underlying.
func (c *Client) IVRankWithRetry(ctx context.Context, underlying string) (float64, error) {
	return Do(ctx, c, "iv rank "+underlying, func(ctx context.Context) (float64, error) {
		return c.broker.IVRank(ctx, underlying)
	})
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// spent. Only errors IsTransient accepts are retried.
func Do[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}
		if opCtx.Err() != nil {
			return zero, fmt.Errorf("%s timed out after %v: %w", op, c.config.Timeout, opCtx.Err())
		}

		v, err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				c.logger.Infof("%s succeeded on attempt %d", op, attempt+1)
			}
			return v, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == c.config.MaxRetries {
			break
		}

		c.logger.Warnf("%s attempt %d/%d failed: %v; retrying in %v", op, attempt+1, c.config.MaxRetries+1, err, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-opCtx.Done():
			if ctx.Err() != nil {
				return zero, fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
			}
			return zero, fmt.Errorf("%s timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed: %w", op, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Warnf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// IsTransient reports whether err is worth retrying. An open circuit breaker
// is not: the breaker already decided to shed load.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"eof",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

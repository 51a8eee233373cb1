package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// --- Test helpers ---

type fakeBroker struct {
	callCount int32

	// if successAfterN > 0, return errTransient for attempts < N, then success
	successAfterN int
	errTransient  error
	errPermanent  error
}

func (f *fakeBroker) FetchChain(ctx context.Context, underlying string) (broker.Chain, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	chain := broker.Chain{}
	chain.Add(models.Contract{Symbol: ".SPXW251210C6100", Strike: 6100, Class: models.Call,
		Expiration: time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)})
	return chain, nil
}

func (f *fakeBroker) IVRank(ctx context.Context, underlying string) (float64, error) {
	if err := f.attempt(); err != nil {
		return 0, err
	}
	return 23.5, nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	return nil, errors.New("not used")
}

func (f *fakeBroker) attempt() error {
	n := atomic.AddInt32(&f.callCount, 1)
	if f.successAfterN > 0 {
		if int(n) < f.successAfterN {
			if f.errTransient != nil {
				return f.errTransient
			}
			return errors.New("timeout") // default transient
		}
		return nil
	}
	return f.errPermanent
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func newClient(b broker.Broker, cfg Config) *Client {
	log, _ := test.NewNullLogger()
	return NewClient(b, log, cfg)
}

func TestFetchChainWithRetry_SucceedsAfterTransient(t *testing.T) {
	fb := &fakeBroker{successAfterN: 3, errTransient: &broker.APIError{Status: 503, Body: "unavailable"}}
	c := newClient(fb, fastConfig())

	chain, err := c.FetchChainWithRetry(context.Background(), "SPX")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if contracts, ok := chain.ForDate(time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)); !ok || len(contracts) != 1 {
		t.Errorf("unexpected chain: %v", chain)
	}
	if got := atomic.LoadInt32(&fb.callCount); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestIVRankWithRetry_PermanentErrorNotRetried(t *testing.T) {
	fb := &fakeBroker{errPermanent: &broker.APIError{Status: 401, Body: "unauthorized"}}
	c := newClient(fb, fastConfig())

	_, err := c.IVRankWithRetry(context.Background(), "SPX")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *broker.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Errorf("expected wrapped APIError 401, got %v", err)
	}
	if got := atomic.LoadInt32(&fb.callCount); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	fb := &fakeBroker{successAfterN: 100}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	c := newClient(fb, cfg)

	_, err := c.IVRankWithRetry(context.Background(), "SPX")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&fb.callCount); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestDo_CanceledContext(t *testing.T) {
	fb := &fakeBroker{successAfterN: 100}
	cfg := fastConfig()
	cfg.InitialBackoff = time.Second
	c := newClient(fb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, c, "probe", func(ctx context.Context) (int, error) {
		return fb.IVRankInt(ctx)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("cancellation did not interrupt backoff")
	}
}

func (f *fakeBroker) IVRankInt(ctx context.Context) (int, error) {
	v, err := f.IVRank(ctx, "SPX")
	return int(v), err
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout text", errors.New("i/o timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"api 429", &broker.APIError{Status: 429}, true},
		{"api 502 wrapped", fmt.Errorf("fetch: %w", &broker.APIError{Status: 502}), true},
		{"api 404", &broker.APIError{Status: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"breaker open", fmt.Errorf("chain: %w", gobreaker.ErrOpenState), false},
		{"validation", errors.New("invalid symbol"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateNextBackoff(t *testing.T) {
	c := newClient(&fakeBroker{}, Config{MaxBackoff: 10 * time.Second})

	for i := 0; i < 20; i++ {
		got := c.calculateNextBackoff(2 * time.Second)
		if got < 3*time.Second || got > 3*time.Second+750*time.Millisecond {
			t.Fatalf("backoff %v outside [3s, 3.75s]", got)
		}
	}

	capped := c.calculateNextBackoff(20 * time.Second)
	if capped < 10*time.Second || capped > 12500*time.Millisecond {
		t.Errorf("capped backoff %v outside [10s, 12.5s]", capped)
	}
}

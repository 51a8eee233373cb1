// Package settlement force-closes positions still OPEN after the session at
// the intrinsic value of their legs.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
)

// ErrPriceUnavailable means no settlement reference could be obtained. The
// ledger is left untouched and the caller retries on its next cycle.
var ErrPriceUnavailable = errors.New("settlement price unavailable")

// DefaultReferenceTimeout bounds one reference collection.
const DefaultReferenceTimeout = 5 * time.Second

// PriceSource supplies the underlying's settlement reference.
type PriceSource interface {
	SettlementPrice(ctx context.Context, underlying string) (float64, error)
}

// StreamPriceSource reads the reference from the feed: the summary's day
// close when published, else the current quote mark.
type StreamPriceSource struct {
	Streamer marketdata.Streamer
	Timeout  time.Duration
}

func (s StreamPriceSource) SettlementPrice(ctx context.Context, underlying string) (float64, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultReferenceTimeout
	}
	snap, err := marketdata.Reference(ctx, s.Streamer, underlying, timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	if sum, ok := snap.Summary(underlying); ok && sum.DayClose > 0 {
		return sum.DayClose, nil
	}
	if mark, ok := snap.Mark(underlying); ok {
		return mark, nil
	}
	return 0, fmt.Errorf("%w: no close or quote for %s within %s", ErrPriceUnavailable, underlying, timeout)
}

// StaticPriceSource returns a fixed price, for manual settlement.
type StaticPriceSource float64

func (p StaticPriceSource) SettlementPrice(context.Context, string) (float64, error) {
	if p <= 0 {
		return 0, fmt.Errorf("%w: invalid manual price %.2f", ErrPriceUnavailable, float64(p))
	}
	return float64(p), nil
}

var (
	_ PriceSource = StreamPriceSource{}
	_ PriceSource = StaticPriceSource(0)
)

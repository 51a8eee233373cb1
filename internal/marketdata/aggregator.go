package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoSubscriptions is returned when a request names no symbols at all.
var ErrNoSubscriptions = errors.New("no symbols requested")

// Subscription asks for one event kind on a set of symbols.
type Subscription struct {
	Kind    EventKind
	Symbols []string
}

// Request describes one bounded collection.
type Request struct {
	Subscriptions []Subscription
	// Timeout bounds the whole collection. Zero means until ctx is done.
	Timeout time.Duration
	// MinCoverage is the fraction of requested (kind, symbol) pairs after
	// which Collect returns early. Zero or anything above 1 means all.
	MinCoverage float64
}

type pair struct {
	kind   EventKind
	symbol string
}

// Collect opens every subscription, pumps them concurrently into one queue and
// merges the events into a Snapshot. It returns when the requested coverage is
// reached or the time budget elapses, whichever comes first. Partial coverage
// is not an error; callers treat missing symbols as not yet available.
// An error is returned only if a subscription cannot be opened, or if the
// parent ctx is cancelled (along with whatever was collected so far).
func Collect(ctx context.Context, s Streamer, req Request) (*Snapshot, error) {
	wanted := make(map[pair]struct{})
	for _, sub := range req.Subscriptions {
		for _, sym := range sub.Symbols {
			if sym != "" {
				wanted[pair{sub.Kind, sym}] = struct{}{}
			}
		}
	}
	if len(wanted) == 0 {
		return NewSnapshot(), ErrNoSubscriptions
	}
	need := len(wanted)
	if req.MinCoverage > 0 && req.MinCoverage < 1 {
		need = int(math.Ceil(req.MinCoverage * float64(len(wanted))))
	}

	parent := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	streams := make([]<-chan Event, 0, len(req.Subscriptions))
	for _, sub := range req.Subscriptions {
		symbols := dedupe(sub.Symbols)
		if len(symbols) == 0 {
			continue
		}
		ch, err := s.Subscribe(ctx, sub.Kind, symbols)
		if err != nil {
			return nil, fmt.Errorf("subscribing to %s for %d symbols: %w", sub.Kind, len(symbols), err)
		}
		streams = append(streams, ch)
	}

	merged := make(chan Event)
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range streams {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					select {
					case merged <- ev:
					case <-gctx.Done():
						return nil
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(merged)
	}()

	snap := NewSnapshot()
	seen := 0
	for {
		select {
		case ev, ok := <-merged:
			if !ok {
				return snap, parent.Err()
			}
			p := pair{ev.Kind, ev.Symbol}
			_, requested := wanted[p]
			fresh := requested && !snap.Has(ev.Kind, ev.Symbol)
			snap.Apply(ev)
			if fresh && snap.Has(ev.Kind, ev.Symbol) {
				seen++
				if seen >= need {
					return snap, nil
				}
			}
		case <-ctx.Done():
			return snap, parent.Err()
		}
	}
}

// Quotes collects bid/ask for symbols within timeout.
func Quotes(ctx context.Context, s Streamer, symbols []string, timeout time.Duration) (*Snapshot, error) {
	return Collect(ctx, s, Request{
		Subscriptions: []Subscription{{Kind: KindQuote, Symbols: symbols}},
		Timeout:       timeout,
	})
}

// Greeks collects deltas for symbols, returning early once coverage of them
// has been observed.
func Greeks(ctx context.Context, s Streamer, symbols []string, timeout time.Duration, coverage float64) (*Snapshot, error) {
	return Collect(ctx, s, Request{
		Subscriptions: []Subscription{{Kind: KindGreeks, Symbols: symbols}},
		Timeout:       timeout,
		MinCoverage:   coverage,
	})
}

// Spot returns the current mark of the underlying. ok is false when no quote
// arrived within timeout.
func Spot(ctx context.Context, s Streamer, symbol string, timeout time.Duration) (float64, bool, error) {
	snap, err := Quotes(ctx, s, []string{symbol}, timeout)
	if err != nil {
		return 0, false, err
	}
	m, ok := snap.Mark(symbol)
	return m, ok, nil
}

// Reference collects the quote and the daily summary of the underlying.
func Reference(ctx context.Context, s Streamer, symbol string, timeout time.Duration) (*Snapshot, error) {
	return Collect(ctx, s, Request{
		Subscriptions: []Subscription{
			{Kind: KindQuote, Symbols: []string{symbol}},
			{Kind: KindSummary, Symbols: []string{symbol}},
		},
		Timeout: timeout,
	})
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

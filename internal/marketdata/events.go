// Package marketdata merges streamed quote, greeks and summary events into
// point-in-time snapshots keyed by symbol.
package marketdata

import (
	"context"
	"math"
	"time"
)

// EventKind identifies the type of a streamed market-data event.
type EventKind string

const (
	KindQuote   EventKind = "Quote"
	KindGreeks  EventKind = "Greeks"
	KindSummary EventKind = "Summary"
)

// Event is one market-data update for one symbol. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind   EventKind
	Symbol string
	Time   time.Time

	// Quote
	Bid float64
	Ask float64

	// Greeks
	Delta float64

	// Summary
	DayOpen   float64
	DayClose  float64
	PrevClose float64
}

// Streamer is the capability "stream events of one kind for these symbols".
// The returned channel is closed when ctx is cancelled or the transport ends.
type Streamer interface {
	Subscribe(ctx context.Context, kind EventKind, symbols []string) (<-chan Event, error)
}

// usable reports whether the event carries data worth recording.
func (e Event) usable() bool {
	switch e.Kind {
	case KindQuote:
		return positive(e.Bid) || positive(e.Ask)
	case KindGreeks:
		return !math.IsNaN(e.Delta) && !math.IsInf(e.Delta, 0)
	case KindSummary:
		return positive(e.DayOpen) || positive(e.DayClose) || positive(e.PrevClose)
	default:
		return false
	}
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

package mock

import (
	"context"
	"sync"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
)

// ScriptedStreamer replays canned events. Each subscription receives the
// scripted events of its kind for its symbols, then stays open until ctx is
// done, like a live feed with nothing new to say.
type ScriptedStreamer struct {
	mu     sync.Mutex
	events []marketdata.Event
	err    error
	calls  []marketdata.Subscription
}

// NewScriptedStreamer creates a streamer that will replay events.
func NewScriptedStreamer(events ...marketdata.Event) *ScriptedStreamer {
	return &ScriptedStreamer{events: events}
}

// Add appends events to the script.
func (s *ScriptedStreamer) Add(events ...marketdata.Event) *ScriptedStreamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s
}

// Reset clears the script and recorded calls.
func (s *ScriptedStreamer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.calls = nil
}

// FailWith makes every subsequent Subscribe return err.
func (s *ScriptedStreamer) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the subscriptions opened so far.
func (s *ScriptedStreamer) Calls() []marketdata.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]marketdata.Subscription(nil), s.calls...)
}

// Subscribe implements marketdata.Streamer.
func (s *ScriptedStreamer) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	s.mu.Lock()
	s.calls = append(s.calls, marketdata.Subscription{Kind: kind, Symbols: append([]string(nil), symbols...)})
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		want[sym] = true
	}
	var script []marketdata.Event
	for _, ev := range s.events {
		if ev.Kind == kind && want[ev.Symbol] {
			script = append(script, ev)
		}
	}
	s.mu.Unlock()

	out := make(chan marketdata.Event)
	go func() {
		defer close(out)
		for _, ev := range script {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

// Quote builds a quote event.
func Quote(symbol string, bid, ask float64) marketdata.Event {
	return marketdata.Event{Kind: marketdata.KindQuote, Symbol: symbol, Bid: bid, Ask: ask}
}

// Mark builds a quote event whose mid is mark.
func Mark(symbol string, mark float64) marketdata.Event {
	return Quote(symbol, mark, mark)
}

// Greek builds a greeks event.
func Greek(symbol string, delta float64) marketdata.Event {
	return marketdata.Event{Kind: marketdata.KindGreeks, Symbol: symbol, Delta: delta}
}

// Summary builds a daily summary event.
func Summary(symbol string, dayOpen, dayClose, prevClose float64) marketdata.Event {
	return marketdata.Event{Kind: marketdata.KindSummary, Symbol: symbol, DayOpen: dayOpen, DayClose: dayClose, PrevClose: prevClose}
}

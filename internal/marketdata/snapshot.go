package marketdata

// Quote is the last bid/ask observed for a symbol.
type Quote struct {
	Bid float64
	Ask float64
}

// Summary is the last daily reference data observed for a symbol.
type Summary struct {
	DayOpen   float64
	DayClose  float64
	PrevClose float64
}

// Snapshot is a point-in-time merge of events keyed by symbol. It is not safe
// for concurrent mutation; Collect owns it until it returns.
type Snapshot struct {
	quotes    map[string]Quote
	greeks    map[string]float64
	summaries map[string]Summary
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		quotes:    make(map[string]Quote),
		greeks:    make(map[string]float64),
		summaries: make(map[string]Summary),
	}
}

// Apply merges one event. Later events for the same (kind, symbol) replace
// earlier ones. Events without usable data are ignored.
func (s *Snapshot) Apply(ev Event) {
	if !ev.usable() {
		return
	}
	switch ev.Kind {
	case KindQuote:
		s.quotes[ev.Symbol] = Quote{Bid: ev.Bid, Ask: ev.Ask}
	case KindGreeks:
		s.greeks[ev.Symbol] = ev.Delta
	case KindSummary:
		s.summaries[ev.Symbol] = Summary{DayOpen: ev.DayOpen, DayClose: ev.DayClose, PrevClose: ev.PrevClose}
	}
}

// Has reports whether an event of kind has been recorded for symbol.
func (s *Snapshot) Has(kind EventKind, symbol string) bool {
	var ok bool
	switch kind {
	case KindQuote:
		_, ok = s.quotes[symbol]
	case KindGreeks:
		_, ok = s.greeks[symbol]
	case KindSummary:
		_, ok = s.summaries[symbol]
	}
	return ok
}

// Quote returns the raw bid/ask for symbol.
func (s *Snapshot) Quote(symbol string) (Quote, bool) {
	q, ok := s.quotes[symbol]
	return q, ok
}

// Mark returns the mid of bid and ask when both are positive, otherwise
// whichever side is positive. ok is false when neither side is available.
func (s *Snapshot) Mark(symbol string) (float64, bool) {
	q, ok := s.quotes[symbol]
	if !ok {
		return 0, false
	}
	switch {
	case positive(q.Bid) && positive(q.Ask):
		return (q.Bid + q.Ask) / 2, true
	case positive(q.Bid):
		return q.Bid, true
	case positive(q.Ask):
		return q.Ask, true
	default:
		return 0, false
	}
}

// Delta returns the last delta observed for symbol.
func (s *Snapshot) Delta(symbol string) (float64, bool) {
	d, ok := s.greeks[symbol]
	return d, ok
}

// Deltas returns a copy of every delta in the snapshot.
func (s *Snapshot) Deltas() map[string]float64 {
	out := make(map[string]float64, len(s.greeks))
	for k, v := range s.greeks {
		out[k] = v
	}
	return out
}

// Summary returns the last summary observed for symbol.
func (s *Snapshot) Summary(symbol string) (Summary, bool) {
	sm, ok := s.summaries[symbol]
	return sm, ok
}

// Len returns the number of (kind, symbol) entries recorded.
func (s *Snapshot) Len() int {
	return len(s.quotes) + len(s.greeks) + len(s.summaries)
}

// Package notify delivers fire-and-forget position events. Delivery never
// reports back to the caller: sink failures are logged and dropped.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// OpenedEvent announces a new OPEN ledger row.
type OpenedEvent struct {
	ID                uuid.UUID
	Time              time.Time
	Strategy          string
	StrategyID        string
	ShortCall         string
	LongCall          string
	ShortPut          string
	LongPut           string
	Credit            float64
	ProfitTarget      float64 // profit in dollars per share at the target
	ProfitTargetDebit float64
	Width             float64
	Spot              float64 // 0 when unknown
	IVRank            float64
	Notes             string
}

// CreditPct is the credit as a percentage of the spread width.
func (e OpenedEvent) CreditPct() float64 {
	if e.Width <= 0 {
		return 0
	}
	return e.Credit / e.Width * 100
}

// Summary renders a one-line description.
func (e OpenedEvent) Summary() string {
	return fmt.Sprintf("[%s] opened %s/%s %s/%s for %.2f credit (target debit %.2f)",
		e.Strategy, e.ShortPut, e.LongPut, e.ShortCall, e.LongCall, e.Credit, e.ProfitTargetDebit)
}

// ClosedEvent announces a transition out of OPEN.
type ClosedEvent struct {
	ID         uuid.UUID
	Time       time.Time
	Strategy   string
	StrategyID string
	Status     models.Status
	Reason     models.ExitReason
	Credit     float64
	Debit      float64
	PL         float64
	Note       string
}

// Summary renders a one-line description.
func (e ClosedEvent) Summary() string {
	return fmt.Sprintf("[%s] %s (%s): debit %.2f, P/L %+.2f", e.Strategy, e.Status, e.Reason, e.Debit, e.PL)
}

// Notifier is the port the engine publishes through.
type Notifier interface {
	PositionOpened(ev OpenedEvent)
	PositionClosed(ev ClosedEvent)
}

// Nop drops every event.
type Nop struct{}

func (Nop) PositionOpened(OpenedEvent) {}
func (Nop) PositionClosed(ClosedEvent) {}

// Recorder keeps every event in memory. It is used by tests.
type Recorder struct {
	mu     sync.Mutex
	opened []OpenedEvent
	closed []ClosedEvent
}

func (r *Recorder) PositionOpened(ev OpenedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, ev)
}

func (r *Recorder) PositionClosed(ev ClosedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, ev)
}

// Opened returns a copy of the recorded open events.
func (r *Recorder) Opened() []OpenedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OpenedEvent(nil), r.opened...)
}

// Closed returns a copy of the recorded close events.
func (r *Recorder) Closed() []ClosedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ClosedEvent(nil), r.closed...)
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*Recorder)(nil)
	_ Notifier = (*Bus)(nil)
)

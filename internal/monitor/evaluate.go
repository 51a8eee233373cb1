// Package monitor marks open positions to market and closes them when an
// exit condition holds.
package monitor

import (
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// Decision is the outcome of evaluating one open position.
type Decision string

const (
	DecisionHold           Decision = "hold"
	DecisionWaitingForData Decision = "waiting_for_data"
	DecisionProfitTarget   Decision = "profit_target"
	DecisionTimeExit       Decision = "time_exit"
	// DecisionStale marks a row from a prior session. It is reported only
	// in read-only mode; otherwise the row is expired before evaluation.
	DecisionStale Decision = "stale"
)

// Closes reports whether the decision moves the position to CLOSED.
func (d Decision) Closes() bool {
	return d == DecisionProfitTarget || d == DecisionTimeExit
}

// Reason maps a closing decision to its ledger exit reason.
func (d Decision) Reason() models.ExitReason {
	if d == DecisionTimeExit {
		return models.ReasonTimeExit
	}
	return models.ReasonProfitTarget
}

// debitEpsilon absorbs float noise when comparing a debit to its target.
const debitEpsilon = 1e-9

// Evaluation is the live valuation of one position.
type Evaluation struct {
	Marks    strategy.Marks
	Debit    float64 // debit to close
	PL       float64 // credit minus debit, unrounded
	Target   float64 // profit-target debit threshold
	Missing  []string
	Decision Decision
}

// Evaluate values pos against snap. It performs no I/O. now must be in the
// exchange timezone; cutoff is the strategy's time exit, nil when it has none.
//
// The profit target is checked before the time exit, so a position at its
// target after the cutoff still closes as a winner.
func Evaluate(pos models.Position, snap *marketdata.Snapshot, now time.Time, cutoff *models.Clock) Evaluation {
	ev := Evaluation{Target: float64(pos.ProfitTarget)}

	marks := []*float64{&ev.Marks.ShortCall, &ev.Marks.LongCall, &ev.Marks.ShortPut, &ev.Marks.LongPut}
	for i, sym := range pos.LegSymbols() {
		m, ok := snap.Mark(sym)
		if !ok {
			ev.Missing = append(ev.Missing, sym)
			continue
		}
		*marks[i] = m
	}
	if len(ev.Missing) > 0 {
		ev.Decision = DecisionWaitingForData
		return ev
	}

	ev.Debit = strategy.DebitToClose(ev.Marks)
	ev.PL = pos.Credit() - ev.Debit

	switch {
	case ev.Debit <= ev.Target+debitEpsilon:
		ev.Decision = DecisionProfitTarget
	case cutoff != nil && cutoff.Reached(now):
		ev.Decision = DecisionTimeExit
	default:
		ev.Decision = DecisionHold
	}
	return ev
}

// RealizedPL is the P/L written to the ledger, rounded to cents.
func (e Evaluation) RealizedPL() float64 {
	return util.RoundCents(e.PL)
}

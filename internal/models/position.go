// Package models provides data structures and state management for trading positions.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// Layouts of the ledger's date and clock columns.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

// Position is one ledger row. Only ApplyExit mutates it after creation, and
// only while it is OPEN.
type Position struct {
	Date            string    `csv:"Date"`
	EntryTime       string    `csv:"Entry Time"`
	Symbol          string    `csv:"Symbol"`
	Strategy        string    `csv:"Strategy"`
	StrategyID      string    `csv:"StrategyId"`
	ShortCall       string    `csv:"Short Call"`
	LongCall        string    `csv:"Long Call"`
	ShortPut        string    `csv:"Short Put"`
	LongPut         string    `csv:"Long Put"`
	CreditCollected Money     `csv:"Credit Collected"`
	BuyingPower     Money     `csv:"Buying Power"`
	ProfitTarget    Money     `csv:"Profit Target"` // debit threshold at which the position is a winner
	Status          Status    `csv:"Status"`
	ExitTime        string    `csv:"Exit Time"`
	ExitPL          NullMoney `csv:"Exit P/L"`
	Notes           string    `csv:"Notes"`
	IVRank          Money     `csv:"IV Rank"`
}

// Exit describes a complete transition out of OPEN.
type Exit struct {
	Status Status
	Reason ExitReason
	Time   time.Time
	PL     float64
	Note   string
}

// NewPosition creates an OPEN position from a priced combo.
func NewPosition(now time.Time, underlying, strategyName, strategyID string, combo *SpreadCombo,
	credit, buyingPower, profitTargetDebit, ivRank float64, notes string) Position {
	return Position{
		Date:            now.Format(DateLayout),
		EntryTime:       now.Format(ClockLayout),
		Symbol:          underlying,
		Strategy:        strategyName,
		StrategyID:      strategyID,
		ShortCall:       combo.ShortCall.Symbol,
		LongCall:        combo.LongCall.Symbol,
		ShortPut:        combo.ShortPut.Symbol,
		LongPut:         combo.LongPut.Symbol,
		CreditCollected: Money(util.RoundCents(credit)),
		BuyingPower:     Money(util.RoundCents(buyingPower)),
		ProfitTarget:    Money(util.RoundCents(profitTargetDebit)),
		Status:          StatusOpen,
		Notes:           notes,
		IVRank:          Money(util.RoundCents(ivRank)),
	}
}

// IsOpen reports whether the position is still OPEN.
func (p *Position) IsOpen() bool {
	return ParseStatus(string(p.Status)) == StatusOpen
}

// Credit returns the premium collected at entry.
func (p *Position) Credit() float64 {
	return float64(p.CreditCollected)
}

// LegSymbols returns the four leg symbols in ledger column order.
func (p *Position) LegSymbols() []string {
	return []string{p.ShortCall, p.LongCall, p.ShortPut, p.LongPut}
}

// Strikes parses the four strikes from the leg symbols.
func (p *Position) Strikes() (Strikes, error) {
	var s Strikes
	targets := []*float64{&s.ShortCall, &s.LongCall, &s.ShortPut, &s.LongPut}
	for i, sym := range p.LegSymbols() {
		v, err := ParseStrike(sym)
		if err != nil {
			return Strikes{}, err
		}
		*targets[i] = v
	}
	return s, nil
}

// EntryDay returns the entry date as midnight in loc.
func (p *Position) EntryDay(loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(p.Date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing entry date %q: %w", p.Date, err)
	}
	return d, nil
}

// ApplyExit moves the position out of OPEN. Every exit field is set together;
// on error nothing is modified.
func (p *Position) ApplyExit(exit Exit) error {
	if err := ValidateTransition(ParseStatus(string(p.Status)), exit.Status, exit.Reason); err != nil {
		return fmt.Errorf("position %s %s state transition failed: %w", p.StrategyID, p.EntryTime, err)
	}
	p.Status = exit.Status
	p.ExitTime = exit.Time.Format(ClockLayout)
	p.ExitPL = NewNullMoney(util.RoundCents(exit.PL))
	p.Notes = AppendNote(p.Notes, exit.Note)
	return nil
}

// AppendNote joins a note onto existing free text with " | ".
func AppendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + " | " + note
	}
}

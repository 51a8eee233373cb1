package main

import (
	"context"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/settlement"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// GapDecision is the day's cached overnight-gap verdict.
type GapDecision struct {
	Gap    *strategy.Gap // nil when reference data was unavailable
	Trade  bool
	Reason string
}

// DayContext holds the state that lives for one exchange date. The poll loop
// replaces it on rollover rather than resetting fields.
type DayContext struct {
	Date string

	fired           map[models.Clock]bool
	gap             *GapDecision
	settlementPrice float64
}

// NewDayContext starts the trading day containing now.
func NewDayContext(now time.Time) *DayContext {
	return &DayContext{
		Date:  now.Format(models.DateLayout),
		fired: make(map[models.Clock]bool),
	}
}

// Covers reports whether now falls on this context's date.
func (d *DayContext) Covers(now time.Time) bool {
	return d.Date == now.Format(models.DateLayout)
}

// Fire marks trigger as fired and reports whether it had not fired yet.
func (d *DayContext) Fire(trigger models.Clock) bool {
	if d.Fired(trigger) {
		return false
	}
	d.fired[trigger] = true
	return true
}

// Fired reports whether trigger already fired today.
func (d *DayContext) Fired(trigger models.Clock) bool {
	return d.fired[trigger]
}

// Gap returns the cached gap decision, if one was made today.
func (d *DayContext) Gap() (GapDecision, bool) {
	if d.gap == nil {
		return GapDecision{}, false
	}
	return *d.gap, true
}

// SetGap caches the gap decision for the rest of the day.
func (d *DayContext) SetGap(g GapDecision) {
	d.gap = &g
}

// SettlementPrice returns the cached settlement reference.
func (d *DayContext) SettlementPrice() (float64, bool) {
	return d.settlementPrice, d.settlementPrice > 0
}

// SetSettlementPrice caches the settlement reference for the rest of the day.
func (d *DayContext) SetSettlementPrice(p float64) {
	d.settlementPrice = p
}

// dayCachedPrices serves the settlement price from the current day context,
// asking the underlying source only until one price has been obtained.
type dayCachedPrices struct {
	source settlement.PriceSource
	day    func() *DayContext
}

func (c dayCachedPrices) SettlementPrice(ctx context.Context, underlying string) (float64, error) {
	day := c.day()
	if p, ok := day.SettlementPrice(); ok {
		return p, nil
	}
	p, err := c.source.SettlementPrice(ctx, underlying)
	if err != nil {
		return 0, err
	}
	day.SetSettlementPrice(p)
	return p, nil
}

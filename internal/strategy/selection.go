package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// ErrNoCombo is returned when no valid four-leg spread can be built.
var ErrNoCombo = errors.New("no combo found")

// SplitChain partitions contracts into calls and puts sorted by strike,
// annotating each with its delta. Contracts without a delta are dropped.
func SplitChain(contracts []models.Contract, deltas map[string]float64) (calls, puts []models.Leg) {
	for _, c := range contracts {
		d, ok := deltas[c.Symbol]
		if !ok {
			continue
		}
		leg := models.Leg{Symbol: c.Symbol, Strike: c.Strike, Class: c.Class, Delta: d}
		switch c.Class {
		case models.Call:
			calls = append(calls, leg)
		case models.Put:
			puts = append(puts, leg)
		}
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Strike < calls[j].Strike })
	sort.SliceStable(puts, func(i, j int) bool { return puts[i].Strike < puts[j].Strike })
	return calls, puts
}

// Select runs the routine for p.Type.
func Select(p Params, calls, puts []models.Leg) (*models.SpreadCombo, error) {
	switch p.Type {
	case IronCondor:
		return SelectIronCondor(calls, puts, p.TargetDelta, p.WingWidth)
	case IronFly:
		return SelectIronFly(calls, puts, p.TargetDelta, p.WingWidth)
	default:
		return nil, fmt.Errorf("cannot select legs for strategy type %q", p.Type)
	}
}

// SelectIronCondor picks the call closest to +tau and the put closest to
// -tau as shorts, then the contracts nearest wing points further out as longs.
func SelectIronCondor(calls, puts []models.Leg, tau, wing float64) (*models.SpreadCombo, error) {
	if len(calls) == 0 || len(puts) == 0 {
		return nil, fmt.Errorf("%w: %d calls and %d puts with greeks", ErrNoCombo, len(calls), len(puts))
	}
	if wing <= 0 {
		wing = DefaultCondorWing
	}

	shortCall := nearest(calls, func(l models.Leg) float64 { return math.Abs(l.Delta - tau) })
	shortPut := nearest(puts, func(l models.Leg) float64 { return math.Abs(l.Delta + tau) })
	longCall := nearest(calls, func(l models.Leg) float64 { return math.Abs(l.Strike - (shortCall.Strike + wing)) })
	longPut := nearest(puts, func(l models.Leg) float64 { return math.Abs(l.Strike - (shortPut.Strike - wing)) })

	return assemble(shortCall, longCall, shortPut, longPut)
}

// SelectIronFly sells the call closest to tau and the put at the same strike,
// buying wings wing points either side. The call strike is the anchor: the
// selection fails when no put exists at exactly that strike, even if another
// put is closer to |tau|.
func SelectIronFly(calls, puts []models.Leg, tau, wing float64) (*models.SpreadCombo, error) {
	if len(calls) == 0 || len(puts) == 0 {
		return nil, fmt.Errorf("%w: %d calls and %d puts with greeks", ErrNoCombo, len(calls), len(puts))
	}
	if tau <= 0 {
		tau = DefaultFlyDelta
	}
	if wing <= 0 {
		wing = DefaultFlyWing
	}

	atmCall := nearest(calls, func(l models.Leg) float64 { return math.Abs(l.Delta - tau) })
	anchor := atmCall.Strike

	atmPut, ok := atStrike(puts, anchor)
	if !ok {
		candidate := nearest(puts, func(l models.Leg) float64 { return math.Abs(math.Abs(l.Delta) - tau) })
		return nil, fmt.Errorf("%w: no put at anchor strike %.2f (closest put by delta is %.2f)",
			ErrNoCombo, anchor, candidate.Strike)
	}

	longCall := nearest(calls, func(l models.Leg) float64 { return math.Abs(l.Strike - (anchor + wing)) })
	longPut := nearest(puts, func(l models.Leg) float64 { return math.Abs(l.Strike - (anchor - wing)) })

	return assemble(atmCall, longCall, atmPut, longPut)
}

func assemble(shortCall, longCall, shortPut, longPut models.Leg) (*models.SpreadCombo, error) {
	combo := &models.SpreadCombo{
		ShortCall: shortCall,
		LongCall:  longCall,
		ShortPut:  shortPut,
		LongPut:   longPut,
	}
	if err := combo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCombo, err)
	}
	return combo, nil
}

// nearest returns the leg minimizing dist. Ties keep the lowest strike.
func nearest(legs []models.Leg, dist func(models.Leg) float64) models.Leg {
	best := legs[0]
	bestDist := dist(best)
	for _, l := range legs[1:] {
		if d := dist(l); d < bestDist {
			best, bestDist = l, d
		}
	}
	return best
}

func atStrike(legs []models.Leg, strike float64) (models.Leg, bool) {
	for _, l := range legs {
		if l.Strike == strike {
			return l, true
		}
	}
	return models.Leg{}, false
}

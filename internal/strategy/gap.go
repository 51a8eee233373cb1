package strategy

import "fmt"

// GapClass buckets the overnight gap.
type GapClass string

const (
	GapLargeUp   GapClass = "large_up"
	GapSmallUp   GapClass = "small_up"
	GapFlat      GapClass = "flat"
	GapSmallDown GapClass = "small_down"
	GapLargeDown GapClass = "large_down"
)

// Gap is the overnight move from the previous close to today's open.
type Gap struct {
	PrevClose float64
	DayOpen   float64
	Pct       float64
	Class     GapClass
}

// ClassifyGap computes and buckets the overnight gap. ok is false when either
// reference price is missing.
func ClassifyGap(prevClose, dayOpen float64) (Gap, bool) {
	if prevClose <= 0 || dayOpen <= 0 {
		return Gap{}, false
	}
	pct := (dayOpen - prevClose) / prevClose * 100
	g := Gap{PrevClose: prevClose, DayOpen: dayOpen, Pct: pct}
	switch {
	case pct > 0.5:
		g.Class = GapLargeUp
	case pct < -0.5:
		g.Class = GapLargeDown
	case pct >= -0.2 && pct <= 0.2:
		g.Class = GapFlat
	case pct > 0.2:
		g.Class = GapSmallUp
	default:
		g.Class = GapSmallDown
	}
	return g, true
}

// ShouldTradeGap decides whether gap-filtered strategies trade today. Large
// up gaps and flat opens trade; everything else is skipped. A nil gap means
// the data was unavailable and trading proceeds.
func ShouldTradeGap(g *Gap) (bool, string) {
	if g == nil {
		return true, "gap data unavailable, trading anyway"
	}
	switch g.Class {
	case GapLargeUp:
		return true, fmt.Sprintf("large up gap (%+.2f%%)", g.Pct)
	case GapFlat:
		return true, fmt.Sprintf("flat open (%+.2f%%)", g.Pct)
	case GapSmallUp:
		return false, fmt.Sprintf("small up gap (%+.2f%%)", g.Pct)
	case GapSmallDown, GapLargeDown:
		return false, fmt.Sprintf("down gap (%+.2f%%)", g.Pct)
	default:
		return true, "unknown gap classification, trading anyway"
	}
}

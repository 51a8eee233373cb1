package strategy

import "fmt"

// Variant is the outcome of the dynamic strategy's opening-move check.
type Variant struct {
	Params  Params
	MovePct float64
	Label   string // IC or IF
}

// Note renders the variant choice for the position notes.
func (v Variant) Note() string {
	return fmt.Sprintf("Open move: %+.2f%% -> %s", v.MovePct, v.Label)
}

// OpeningMove returns the percentage move of spot from the session open.
// ok is false when either price is missing.
func OpeningMove(spot, dayOpen float64) (float64, bool) {
	if spot <= 0 || dayOpen <= 0 {
		return 0, false
	}
	return (spot - dayOpen) / dayOpen * 100, true
}

// Resolve picks the dynamic variant from the opening move: a move above the
// threshold sells a condor, anything at or below it sells a fly.
func (d Definition) Resolve(movePct float64) Variant {
	if movePct > d.MoveThreshold {
		return Variant{Params: condorParams(d.CondorDelta, d.CondorWingWidth), MovePct: movePct, Label: "IC"}
	}
	return Variant{Params: flyParams(d.FlyDelta, d.FlyWingWidth), MovePct: movePct, Label: "IF"}
}

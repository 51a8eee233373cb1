// Package strategy selects and prices 0DTE credit spreads and derives their
// economics. Strategies are data: one Definition per configured variant.
package strategy

import (
	"fmt"
	"strings"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Type selects which leg-selection routine a strategy runs.
type Type string

const (
	IronCondor Type = "iron_condor"
	IronFly    Type = "iron_fly"
	Dynamic    Type = "dynamic"
)

// Selection defaults.
const (
	DefaultCondorWing    = 20.0
	DefaultFlyDelta      = 0.50
	DefaultFlyWing       = 10.0
	DefaultMoveThreshold = -0.1
)

// ParseType normalizes a configured strategy type. "dynamic_0dte" is accepted
// as an alias of dynamic.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(IronCondor):
		return IronCondor, nil
	case string(IronFly):
		return IronFly, nil
	case string(Dynamic), "dynamic_0dte":
		return Dynamic, nil
	default:
		return "", fmt.Errorf("unknown strategy type %q", s)
	}
}

// Definition is one configured strategy variant.
type Definition struct {
	Name            string
	Code            string
	Type            Type
	TargetDelta     float64
	ProfitTargetPct float64 // fraction of credit captured before closing
	WingWidth       float64
	AllowedTimes    []models.Clock // empty means every entry trigger
	GapFilter       bool
	TimeExit        *models.Clock

	// Dynamic variant only.
	MoveThreshold   float64
	CondorDelta     float64
	CondorWingWidth float64
	FlyDelta        float64
	FlyWingWidth    float64
}

// Params is a resolved leg-selection request.
type Params struct {
	Type        Type
	TargetDelta float64
	WingWidth   float64
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if d.ProfitTargetPct <= 0 || d.ProfitTargetPct >= 1 {
		return fmt.Errorf("profit_target_pct must be between 0 and 1 (exclusive), got %.2f", d.ProfitTargetPct)
	}
	if d.WingWidth < 0 {
		return fmt.Errorf("wing_width must be non-negative, got %.2f", d.WingWidth)
	}
	switch d.Type {
	case IronCondor:
		if d.TargetDelta <= 0 || d.TargetDelta > 1 {
			return fmt.Errorf("target_delta must be in (0, 1], got %.2f", d.TargetDelta)
		}
	case IronFly:
		if d.TargetDelta < 0 || d.TargetDelta > 1 {
			return fmt.Errorf("target_delta must be in [0, 1], got %.2f", d.TargetDelta)
		}
	case Dynamic:
		if d.CondorDelta <= 0 || d.CondorDelta > 1 {
			return fmt.Errorf("condor_delta must be in (0, 1], got %.2f", d.CondorDelta)
		}
		if d.FlyDelta < 0 || d.FlyDelta > 1 {
			return fmt.Errorf("fly_delta must be in [0, 1], got %.2f", d.FlyDelta)
		}
	default:
		return fmt.Errorf("unknown strategy type %q", d.Type)
	}
	return nil
}

// AllowedAt reports whether the strategy fires at trigger.
func (d Definition) AllowedAt(trigger models.Clock) bool {
	if len(d.AllowedTimes) == 0 {
		return true
	}
	for _, t := range d.AllowedTimes {
		if t == trigger {
			return true
		}
	}
	return false
}

// ID returns the strategy identifier for a trigger.
func (d Definition) ID(trigger models.Clock) string {
	return StrategyID(d.Code, trigger)
}

// Params resolves the selection request of a fixed (non-dynamic) variant,
// applying the per-type defaults.
func (d Definition) Params() Params {
	switch d.Type {
	case IronFly:
		return flyParams(d.TargetDelta, d.WingWidth)
	default:
		return condorParams(d.TargetDelta, d.WingWidth)
	}
}

func condorParams(delta, wing float64) Params {
	if wing <= 0 {
		wing = DefaultCondorWing
	}
	return Params{Type: IronCondor, TargetDelta: delta, WingWidth: wing}
}

func flyParams(delta, wing float64) Params {
	if delta <= 0 {
		delta = DefaultFlyDelta
	}
	if wing <= 0 {
		wing = DefaultFlyWing
	}
	return Params{Type: IronFly, TargetDelta: delta, WingWidth: wing}
}

// StrategyID builds the CODE-HHMM identifier stored in the ledger.
func StrategyID(code string, trigger models.Clock) string {
	code = strings.TrimSpace(code)
	if code == "" {
		code = "UNK"
	}
	return code + "-" + trigger.HHMM()
}

// NormalizeIVRank converts a ratio in (0, 1] to a percentage. Values already
// expressed as percentages pass through.
func NormalizeIVRank(v float64) float64 {
	if v > 0 && v <= 1 {
		return v * 100
	}
	return v
}

// DefaultDefinitions is the stock strategy roster, with times in US/Eastern.
func DefaultDefinitions() []Definition {
	c := models.MustParseClock
	timeExit := c("13:00")
	return []Definition{
		{Name: "20 Delta", Code: "IC-20D", Type: IronCondor, TargetDelta: 0.20, ProfitTargetPct: 0.25,
			AllowedTimes: []models.Clock{c("09:45"), c("10:30")}},
		{Name: "30 Delta", Code: "IC-30D", Type: IronCondor, TargetDelta: 0.30, ProfitTargetPct: 0.25,
			TimeExit: &timeExit},
		{Name: "Iron Fly V1", Code: "IF-V1", Type: IronFly, TargetDelta: 0.50, ProfitTargetPct: 0.10, WingWidth: 10,
			AllowedTimes: []models.Clock{c("10:00")}},
		{Name: "Iron Fly V2", Code: "IF-V2", Type: IronFly, TargetDelta: 0.50, ProfitTargetPct: 0.20, WingWidth: 10,
			AllowedTimes: []models.Clock{c("10:00")}},
		{Name: "Iron Fly V3", Code: "IF-V3", Type: IronFly, TargetDelta: 0.50, ProfitTargetPct: 0.10, WingWidth: 10,
			AllowedTimes: []models.Clock{c("10:30")}},
		{Name: "Iron Fly V4", Code: "IF-V4", Type: IronFly, TargetDelta: 0.50, ProfitTargetPct: 0.20, WingWidth: 10,
			AllowedTimes: []models.Clock{c("10:30")}},
		{Name: "Gap Filter 20D", Code: "GF-20D", Type: IronCondor, TargetDelta: 0.20, ProfitTargetPct: 0.25,
			AllowedTimes: []models.Clock{c("10:00"), c("10:30")}, GapFilter: true},
		{Name: "Dynamic 0DTE", Code: "DY-0D", Type: Dynamic, ProfitTargetPct: 0.20,
			AllowedTimes:  []models.Clock{c("10:00")},
			MoveThreshold: DefaultMoveThreshold,
			CondorDelta:   0.20, CondorWingWidth: 20,
			FlyDelta: 0.50, FlyWingWidth: 10},
	}
}

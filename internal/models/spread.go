package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ContractMultiplier is the number of underlying units per option contract.
const ContractMultiplier = 100.0

// OptionClass distinguishes calls from puts.
type OptionClass string

const (
	Call OptionClass = "CALL"
	Put  OptionClass = "PUT"
)

// Contract is one tradable option as supplied by the chain lookup.
type Contract struct {
	Symbol     string      `json:"symbol"` // streamer symbol, e.g. .SPXW251210C6875
	Strike     float64     `json:"strike"`
	Class      OptionClass `json:"class"`
	Expiration time.Time   `json:"expiration"`
}

// Leg is a contract annotated with its delta and, once priced, its mid price.
type Leg struct {
	Symbol string      `json:"symbol"`
	Strike float64     `json:"strike"`
	Class  OptionClass `json:"class"`
	Delta  float64     `json:"delta"`
	Price  float64     `json:"price"`
}

// SpreadCombo is the four-leg credit spread: short legs sold, long legs bought.
type SpreadCombo struct {
	ShortCall Leg `json:"short_call"`
	LongCall  Leg `json:"long_call"`
	ShortPut  Leg `json:"short_put"`
	LongPut   Leg `json:"long_put"`
}

// Legs returns the four legs in ledger column order.
func (c *SpreadCombo) Legs() []*Leg {
	return []*Leg{&c.ShortCall, &c.LongCall, &c.ShortPut, &c.LongPut}
}

// Symbols returns the four leg symbols in ledger column order.
func (c *SpreadCombo) Symbols() []string {
	return []string{c.ShortCall.Symbol, c.LongCall.Symbol, c.ShortPut.Symbol, c.LongPut.Symbol}
}

// Strikes returns the strike set of the combo.
func (c *SpreadCombo) Strikes() Strikes {
	return Strikes{
		ShortCall: c.ShortCall.Strike,
		LongCall:  c.LongCall.Strike,
		ShortPut:  c.ShortPut.Strike,
		LongPut:   c.LongPut.Strike,
	}
}

// Priced reports whether at least one leg carries a non-zero price.
// An all-zero price set means no quotes arrived and the combo is unusable.
func (c *SpreadCombo) Priced() bool {
	for _, l := range c.Legs() {
		if l.Price != 0 {
			return true
		}
	}
	return false
}

// Validate checks the strike ordering: protective wings sit outside the shorts.
func (c *SpreadCombo) Validate() error {
	return c.Strikes().Validate()
}

// Strikes holds the four strikes of a spread.
type Strikes struct {
	ShortCall float64
	LongCall  float64
	ShortPut  float64
	LongPut   float64
}

// Validate checks short_call < long_call and short_put > long_put.
func (s Strikes) Validate() error {
	if !(s.ShortCall < s.LongCall) {
		return fmt.Errorf("short call strike %.2f must be below long call strike %.2f", s.ShortCall, s.LongCall)
	}
	if !(s.ShortPut > s.LongPut) {
		return fmt.Errorf("short put strike %.2f must be above long put strike %.2f", s.ShortPut, s.LongPut)
	}
	return nil
}

// CallWidth is the strike distance of the call spread.
func (s Strikes) CallWidth() float64 { return abs(s.ShortCall - s.LongCall) }

// PutWidth is the strike distance of the put spread.
func (s Strikes) PutWidth() float64 { return abs(s.ShortPut - s.LongPut) }

// Width is the larger of the two spread widths.
func (s Strikes) Width() float64 {
	if s.CallWidth() > s.PutWidth() {
		return s.CallWidth()
	}
	return s.PutWidth()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

var strikeRE = regexp.MustCompile(`[CP](\d+(?:\.\d+)?)$`)

// ParseStrike extracts the strike from an option streamer symbol such as
// .SPXW251210C6875.
func ParseStrike(symbol string) (float64, error) {
	m := strikeRE.FindStringSubmatch(symbol)
	if m == nil {
		return 0, fmt.Errorf("no strike in option symbol %q", symbol)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing strike of %q: %w", symbol, err)
	}
	return v, nil
}

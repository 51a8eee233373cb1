package strategy

import (
	"math"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Economics are the entry figures of a priced spread.
type Economics struct {
	Credit            float64
	CallWidth         float64
	PutWidth          float64
	Width             float64
	Risk              float64
	BuyingPower       float64
	ProfitTarget      float64 // profit amount at which the position is a winner
	ProfitTargetDebit float64 // debit to close at which that profit is reached
}

// CreditPct is the credit as a percentage of the spread width.
func (e Economics) CreditPct() float64 {
	if e.Width <= 0 {
		return 0
	}
	return e.Credit / e.Width * 100
}

// ComputeEconomics derives credit, risk and the profit-target debit from a
// priced combo. targetFraction is the share of the credit to capture.
func ComputeEconomics(combo *models.SpreadCombo, targetFraction float64) Economics {
	strikes := combo.Strikes()
	credit := (combo.ShortCall.Price + combo.ShortPut.Price) - (combo.LongCall.Price + combo.LongPut.Price)
	width := strikes.Width()
	risk := width - credit
	return Economics{
		Credit:            credit,
		CallWidth:         strikes.CallWidth(),
		PutWidth:          strikes.PutWidth(),
		Width:             width,
		Risk:              risk,
		BuyingPower:       risk * models.ContractMultiplier,
		ProfitTarget:      credit * targetFraction,
		ProfitTargetDebit: credit * (1 - targetFraction),
	}
}

// Marks are per-leg valuations of an open spread.
type Marks struct {
	ShortCall float64
	LongCall  float64
	ShortPut  float64
	LongPut   float64
}

// DebitToClose is the cost of buying back the shorts and selling the longs.
func DebitToClose(m Marks) float64 {
	return (m.ShortCall + m.ShortPut) - (m.LongCall + m.LongPut)
}

// IntrinsicMarks values every leg at its intrinsic value with the underlying
// at price.
func IntrinsicMarks(s models.Strikes, price float64) Marks {
	return Marks{
		ShortCall: math.Max(0, price-s.ShortCall),
		LongCall:  math.Max(0, price-s.LongCall),
		ShortPut:  math.Max(0, s.ShortPut-price),
		LongPut:   math.Max(0, s.LongPut-price),
	}
}

// SettlementDebit is the intrinsic debit of the spread at expiration. It is
// DebitToClose applied to IntrinsicMarks, so live and settlement closes agree.
func SettlementDebit(s models.Strikes, price float64) float64 {
	return DebitToClose(IntrinsicMarks(s, price))
}

// WorstCaseDebit is the debit of a spread settled fully in the money on its
// wider side. Used only as an estimate when no settlement price is known.
func WorstCaseDebit(s models.Strikes) float64 {
	return s.Width()
}

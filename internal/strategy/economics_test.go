package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func pricedCombo(sc, lc, sp, lp float64, strikes models.Strikes) *models.SpreadCombo {
	return &models.SpreadCombo{
		ShortCall: models.Leg{Strike: strikes.ShortCall, Class: models.Call, Price: sc},
		LongCall:  models.Leg{Strike: strikes.LongCall, Class: models.Call, Price: lc},
		ShortPut:  models.Leg{Strike: strikes.ShortPut, Class: models.Put, Price: sp},
		LongPut:   models.Leg{Strike: strikes.LongPut, Class: models.Put, Price: lp},
	}
}

func TestComputeEconomics(t *testing.T) {
	strikes := models.Strikes{ShortCall: 6100, LongCall: 6120, ShortPut: 6000, LongPut: 5975}
	e := ComputeEconomics(pricedCombo(0.60, 0.10, 0.60, 0.10, strikes), 0.25)

	assert.InDelta(t, 1.00, e.Credit, 1e-9)
	assert.Equal(t, 20.0, e.CallWidth)
	assert.Equal(t, 25.0, e.PutWidth)
	assert.Equal(t, 25.0, e.Width, "width is the wider side")
	assert.InDelta(t, 24.0, e.Risk, 1e-9)
	assert.InDelta(t, 2400.0, e.BuyingPower, 1e-6)
	assert.InDelta(t, 0.25, e.ProfitTarget, 1e-9)
	assert.InDelta(t, 0.75, e.ProfitTargetDebit, 1e-9)
	assert.InDelta(t, 4.0, e.CreditPct(), 1e-9)
}

func TestProfitTargetDebitFromCredit(t *testing.T) {
	tests := []struct {
		credit, fraction, want float64
	}{
		{1.00, 0.25, 0.75},
		{4.50, 0.25, 3.375},
		{10.00, 0.10, 9.00},
		{2.00, 0.20, 1.60},
	}
	for _, tt := range tests {
		strikes := models.Strikes{ShortCall: 5000, LongCall: 5010, ShortPut: 5000, LongPut: 4990}
		e := ComputeEconomics(pricedCombo(tt.credit, 0, 0, 0, strikes), tt.fraction)
		assert.InDelta(t, tt.want, e.ProfitTargetDebit, 1e-9, "credit %.2f fraction %.2f", tt.credit, tt.fraction)
	}
}

func TestDebitToClose(t *testing.T) {
	closing := DebitToClose(Marks{ShortCall: 0.50, ShortPut: 0.50, LongCall: 0.15, LongPut: 0.15})
	assert.InDelta(t, 0.70, closing, 1e-9)

	holding := DebitToClose(Marks{ShortCall: 0.60, ShortPut: 0.60, LongCall: 0.10, LongPut: 0.10})
	assert.InDelta(t, 1.00, holding, 1e-9)
}

func TestSettlementDebit(t *testing.T) {
	strikes := models.Strikes{ShortCall: 6100, LongCall: 6120, ShortPut: 6000, LongPut: 5980}
	tests := []struct {
		price float64
		want  float64
	}{
		{6050, 0},
		{6110, 10},
		{6150, 20},
		{6100, 0},
		{5990, 10},
		{5900, 20},
		{6000, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, SettlementDebit(strikes, tt.price), 1e-9, "price %.2f", tt.price)
	}
}

// Live debit from intrinsic marks and the settlement debit are the same payoff.
func TestSettlementMatchesLiveDebit(t *testing.T) {
	combos := []models.Strikes{
		{ShortCall: 6100, LongCall: 6120, ShortPut: 6000, LongPut: 5980},
		{ShortCall: 5000, LongCall: 5010, ShortPut: 5000, LongPut: 4990},
		{ShortCall: 6075, LongCall: 6100, ShortPut: 5925, LongPut: 5900},
	}
	for _, s := range combos {
		for price := s.LongPut - 50; price <= s.LongCall+50; price += 2.5 {
			settle := SettlementDebit(s, price)
			m := IntrinsicMarks(s, price)
			live := (m.ShortCall + m.ShortPut) - (m.LongCall + m.LongPut)
			if math.Abs(settle-live) > 1e-9 {
				t.Fatalf("strikes %+v price %.2f: settlement %.4f != live %.4f", s, price, settle, live)
			}
			if settle < -1e-9 || settle > s.Width()+1e-9 {
				t.Fatalf("strikes %+v price %.2f: debit %.4f outside [0, width]", s, price, settle)
			}
		}
	}
}

func TestWorstCaseDebit(t *testing.T) {
	s := models.Strikes{ShortCall: 6100, LongCall: 6120, ShortPut: 6000, LongPut: 5975}
	assert.Equal(t, 25.0, WorstCaseDebit(s))
}

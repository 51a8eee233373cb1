package strategy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// ladder builds calls and puts at the given strikes with deltas supplied by fn.
func ladder(strikes []float64, callDelta func(float64) float64) (calls, puts []models.Leg) {
	for _, k := range strikes {
		cd := callDelta(k)
		calls = append(calls, models.Leg{Symbol: fmt.Sprintf(".SPXW251210C%g", k), Strike: k, Class: models.Call, Delta: cd})
		puts = append(puts, models.Leg{Symbol: fmt.Sprintf(".SPXW251210P%g", k), Strike: k, Class: models.Put, Delta: cd - 1})
	}
	return calls, puts
}

func strikeRange(lo, hi, step float64) []float64 {
	var out []float64
	for k := lo; k <= hi; k += step {
		out = append(out, k)
	}
	return out
}

func TestSelectIronFly_ATMWithTenPointWings(t *testing.T) {
	deltas := map[float64]float64{4980: 0.85, 4990: 0.68, 5000: 0.50, 5010: 0.32, 5020: 0.15}
	calls, puts := ladder(strikeRange(4980, 5020, 10), func(k float64) float64 { return deltas[k] })

	combo, err := SelectIronFly(calls, puts, 0.50, 10)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, combo.ShortCall.Strike)
	assert.Equal(t, 5000.0, combo.ShortPut.Strike)
	assert.Equal(t, 5010.0, combo.LongCall.Strike)
	assert.Equal(t, 4990.0, combo.LongPut.Strike)
	assert.Equal(t, models.Call, combo.ShortCall.Class)
	assert.Equal(t, models.Put, combo.ShortPut.Class)
}

func TestSelectIronFly_Defaults(t *testing.T) {
	deltas := map[float64]float64{4980: 0.85, 4990: 0.68, 5000: 0.50, 5010: 0.32, 5020: 0.15}
	calls, puts := ladder(strikeRange(4980, 5020, 10), func(k float64) float64 { return deltas[k] })

	combo, err := SelectIronFly(calls, puts, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.Strikes{ShortCall: 5000, LongCall: 5010, ShortPut: 5000, LongPut: 4990}, combo.Strikes())
}

func TestSelectIronFly_NoPutAtAnchorFails(t *testing.T) {
	deltas := map[float64]float64{4980: 0.85, 4990: 0.68, 5000: 0.50, 5010: 0.32, 5020: 0.15}
	calls, puts := ladder(strikeRange(4980, 5020, 10), func(k float64) float64 { return deltas[k] })

	var filtered []models.Leg
	for _, p := range puts {
		if p.Strike != 5000 {
			filtered = append(filtered, p)
		}
	}

	_, err := SelectIronFly(calls, filtered, 0.50, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCombo))
	assert.Contains(t, err.Error(), "5000")
}

func TestSelectIronCondor_TwentyDelta(t *testing.T) {
	// Call delta falls linearly from 0.9 at 5900 to 0.1 at 6100.
	calls, puts := ladder(strikeRange(5900, 6100, 5), func(k float64) float64 { return 0.9 - (k-5900)*0.004 })

	combo, err := SelectIronCondor(calls, puts, 0.20, 20)
	require.NoError(t, err)

	// Call delta 0.20 at 6075; put delta -0.20 where call delta is 0.80, i.e. 5925.
	assert.Equal(t, models.Strikes{ShortCall: 6075, LongCall: 6095, ShortPut: 5925, LongPut: 5905}, combo.Strikes())
}

func TestSelectIronCondor_WingSnapsToNearestStrike(t *testing.T) {
	calls, puts := ladder([]float64{5900, 5925, 5950, 5975, 6000, 6025, 6050, 6075, 6100},
		func(k float64) float64 { return 0.9 - (k-5900)*0.004 })

	combo, err := SelectIronCondor(calls, puts, 0.20, 20)
	require.NoError(t, err)
	assert.Equal(t, 6075.0, combo.ShortCall.Strike)
	assert.Equal(t, 6100.0, combo.LongCall.Strike, "6095 is not listed; 6100 is nearest")
	assert.Equal(t, 5925.0, combo.ShortPut.Strike)
	assert.Equal(t, 5900.0, combo.LongPut.Strike)
}

func TestSelectIronCondor_Failures(t *testing.T) {
	calls, puts := ladder(strikeRange(5900, 6100, 5), func(k float64) float64 { return 0.9 - (k-5900)*0.004 })

	tests := []struct {
		name  string
		calls []models.Leg
		puts  []models.Leg
	}{
		{"no calls", nil, puts},
		{"no puts", calls, nil},
		{"wing collapses onto short", calls[len(calls)-1:], puts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SelectIronCondor(tt.calls, tt.puts, 0.20, 20)
			assert.ErrorIs(t, err, ErrNoCombo)
		})
	}
}

func TestSplitChain(t *testing.T) {
	contracts := []models.Contract{
		{Symbol: "C6100", Strike: 6100, Class: models.Call},
		{Symbol: "C6050", Strike: 6050, Class: models.Call},
		{Symbol: "P6000", Strike: 6000, Class: models.Put},
		{Symbol: "P5950", Strike: 5950, Class: models.Put},
		{Symbol: "C6200", Strike: 6200, Class: models.Call},
	}
	deltas := map[string]float64{"C6100": 0.2, "C6050": 0.35, "P6000": -0.3, "P5950": -0.2}

	calls, puts := SplitChain(contracts, deltas)
	require.Len(t, calls, 2, "contract without greeks must be dropped")
	require.Len(t, puts, 2)
	assert.Equal(t, 6050.0, calls[0].Strike)
	assert.Equal(t, 0.35, calls[0].Delta)
	assert.Equal(t, 5950.0, puts[0].Strike)
}

func TestSelect_Dispatch(t *testing.T) {
	deltas := map[float64]float64{4980: 0.85, 4990: 0.68, 5000: 0.50, 5010: 0.32, 5020: 0.15}
	calls, puts := ladder(strikeRange(4980, 5020, 10), func(k float64) float64 { return deltas[k] })

	combo, err := Select(Params{Type: IronFly, TargetDelta: 0.5, WingWidth: 10}, calls, puts)
	require.NoError(t, err)
	assert.Equal(t, combo.ShortCall.Strike, combo.ShortPut.Strike)

	_, err = Select(Params{Type: Dynamic}, calls, puts)
	assert.Error(t, err, "dynamic must be resolved before selection")
}

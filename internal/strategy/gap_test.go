package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGap(t *testing.T) {
	tests := []struct {
		name      string
		dayOpen   float64
		wantClass GapClass
		wantTrade bool
	}{
		{"large up", 6036, GapLargeUp, true},
		{"small up", 6018, GapSmallUp, false},
		{"flat up edge", 6011, GapFlat, true},
		{"flat", 6000, GapFlat, true},
		{"flat down edge", 5989, GapFlat, true},
		{"small down", 5982, GapSmallDown, false},
		{"large down", 5964, GapLargeDown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := ClassifyGap(6000, tt.dayOpen)
			require.True(t, ok)
			assert.Equal(t, tt.wantClass, g.Class, "gap %.3f%%", g.Pct)
			trade, reason := ShouldTradeGap(&g)
			assert.Equal(t, tt.wantTrade, trade)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestClassifyGap_MissingData(t *testing.T) {
	_, ok := ClassifyGap(0, 6000)
	assert.False(t, ok)
	_, ok = ClassifyGap(6000, 0)
	assert.False(t, ok)

	trade, _ := ShouldTradeGap(nil)
	assert.True(t, trade, "no gap data trades anyway")
}

func TestResolveDynamic(t *testing.T) {
	d := DefaultDefinitions()[7]
	require.Equal(t, Dynamic, d.Type)

	up := d.Resolve(0.25)
	assert.Equal(t, "IC", up.Label)
	assert.Equal(t, Params{Type: IronCondor, TargetDelta: 0.20, WingWidth: 20}, up.Params)
	assert.Equal(t, "Open move: +0.25% -> IC", up.Note())

	down := d.Resolve(-0.1)
	assert.Equal(t, "IF", down.Label, "a move at the threshold sells the fly")
	assert.Equal(t, Params{Type: IronFly, TargetDelta: 0.50, WingWidth: 10}, down.Params)
}

func TestOpeningMove(t *testing.T) {
	pct, ok := OpeningMove(6006, 6000)
	require.True(t, ok)
	assert.InDelta(t, 0.1, pct, 1e-9)

	_, ok = OpeningMove(6006, 0)
	assert.False(t, ok)
}

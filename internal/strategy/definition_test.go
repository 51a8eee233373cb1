package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func TestDefaultDefinitionsAreValid(t *testing.T) {
	codes := map[string]bool{}
	for _, d := range DefaultDefinitions() {
		require.NoError(t, d.Validate(), d.Name)
		assert.False(t, codes[d.Code], "duplicate code %s", d.Code)
		codes[d.Code] = true
	}
}

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"iron_condor":  IronCondor,
		"IRON_FLY":     IronFly,
		"dynamic":      Dynamic,
		"dynamic_0dte": Dynamic,
	}
	for in, want := range tests {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("strangle")
	assert.Error(t, err)
}

func TestDefinitionValidate(t *testing.T) {
	base := Definition{Name: "20 Delta", Code: "IC-20D", Type: IronCondor, TargetDelta: 0.2, ProfitTargetPct: 0.25}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"missing name", func(d *Definition) { d.Name = " " }},
		{"zero profit target", func(d *Definition) { d.ProfitTargetPct = 0 }},
		{"full profit target", func(d *Definition) { d.ProfitTargetPct = 1 }},
		{"zero condor delta", func(d *Definition) { d.TargetDelta = 0 }},
		{"delta above one", func(d *Definition) { d.TargetDelta = 1.2 }},
		{"negative wing", func(d *Definition) { d.WingWidth = -5 }},
		{"unknown type", func(d *Definition) { d.Type = "strangle" }},
		{"dynamic without condor delta", func(d *Definition) { d.Type = Dynamic; d.FlyDelta = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

func TestAllowedAt(t *testing.T) {
	c := models.MustParseClock
	anytime := Definition{Name: "30 Delta"}
	assert.True(t, anytime.AllowedAt(c("09:45")))
	assert.True(t, anytime.AllowedAt(c("10:30")))

	restricted := Definition{Name: "Iron Fly V1", AllowedTimes: []models.Clock{c("10:00")}}
	assert.True(t, restricted.AllowedAt(c("10:00")))
	assert.False(t, restricted.AllowedAt(c("09:45")))
}

func TestStrategyID(t *testing.T) {
	c := models.MustParseClock
	assert.Equal(t, "IC-20D-0945", StrategyID("IC-20D", c("09:45")))
	assert.Equal(t, "UNK-1030", StrategyID("", c("10:30")))
	assert.Equal(t, "IF-V1-1000", Definition{Code: "IF-V1"}.ID(c("10:00")))
}

func TestParamsDefaults(t *testing.T) {
	condor := Definition{Type: IronCondor, TargetDelta: 0.3}.Params()
	assert.Equal(t, Params{Type: IronCondor, TargetDelta: 0.3, WingWidth: DefaultCondorWing}, condor)

	fly := Definition{Type: IronFly}.Params()
	assert.Equal(t, Params{Type: IronFly, TargetDelta: DefaultFlyDelta, WingWidth: DefaultFlyWing}, fly)
}

func TestNormalizeIVRank(t *testing.T) {
	assert.InDelta(t, 13.54, NormalizeIVRank(0.1354), 1e-9)
	assert.Equal(t, 100.0, NormalizeIVRank(1))
	assert.Equal(t, 45.2, NormalizeIVRank(45.2))
	assert.Equal(t, 0.0, NormalizeIVRank(0))
}

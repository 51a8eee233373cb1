package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func closed(date, strategy string, pl float64) models.Position {
	return models.Position{
		Date:     date,
		Symbol:   "SPX",
		Strategy: strategy,
		Status:   models.StatusClosed,
		ExitPL:   models.NewNullMoney(pl),
	}
}

func ledger() []models.Position {
	return []models.Position{
		closed("2025-12-09", "20 Delta", 1.00),
		closed("2025-12-09", "Iron Fly V1", -3.00),
		closed("2025-12-10", "20 Delta", 2.00),
		closed("2025-12-10", "20 Delta", -0.50),
		closed("2025-12-10", "20 Delta", 0),
		{Date: "2025-12-11", Strategy: "Iron Fly V1", Status: models.StatusOpen},
	}
}

func TestByStrategy(t *testing.T) {
	summaries, err := ByStrategy(ledger())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	ic := summaries[0]
	assert.Equal(t, "20 Delta", ic.Strategy)
	assert.Equal(t, 4, ic.Trades)
	assert.Equal(t, 2, ic.Wins)
	assert.Equal(t, 1, ic.Losses)
	assert.Equal(t, 0, ic.Open)
	assert.InDelta(t, 2.50, ic.Total, 1e-9)
	assert.InDelta(t, 0.63, ic.Mean, 1e-9)
	assert.InDelta(t, 0.50, ic.Median, 1e-9)
	assert.InDelta(t, 2.00, ic.Best, 1e-9)
	assert.InDelta(t, -0.50, ic.Worst, 1e-9)
	assert.InDelta(t, 66.67, ic.WinRate(), 0.01)
	assert.Greater(t, ic.StdDev, 0.0)

	fly := summaries[1]
	assert.Equal(t, "Iron Fly V1", fly.Strategy)
	assert.Equal(t, 1, fly.Trades)
	assert.Equal(t, 1, fly.Open)
	assert.Equal(t, 0.0, fly.StdDev)
	assert.Equal(t, 0.0, fly.WinRate())
}

func TestByStrategy_OnlyOpen(t *testing.T) {
	summaries, err := ByStrategy([]models.Position{{Strategy: "30 Delta", Status: models.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Trades)
	assert.Equal(t, 1, summaries[0].Open)
}

func TestByDay(t *testing.T) {
	days := ByDay(ledger())
	assert.Equal(t, []DaySummary{
		{Date: "2025-12-09", Trades: 2, PL: -2.00},
		{Date: "2025-12-10", Trades: 3, PL: 1.50},
	}, days)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ledger()))

	out := buf.String()
	for _, want := range []string{"Strategies:", "Daily P/L:", "Overall:", "20 Delta", "2025-12-10", "1.50", "-0.50"} {
		assert.Contains(t, out, want)
	}
}

func TestWrite_EmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Contains(t, buf.String(), "Overall:")
}

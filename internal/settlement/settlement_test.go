package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/mock"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/notify"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
)

func openCondor() models.Position {
	return models.Position{
		Date:            "2025-12-10",
		EntryTime:       "09:45:00",
		Symbol:          "SPX",
		Strategy:        "20 Delta",
		StrategyID:      "IC-20D-0945",
		ShortCall:       ".SPXW251210C6100",
		LongCall:        ".SPXW251210C6120",
		ShortPut:        ".SPXW251210P6000",
		LongPut:         ".SPXW251210P5980",
		CreditCollected: 4.50,
		BuyingPower:     1550,
		ProfitTarget:    3.38,
		Status:          models.StatusOpen,
	}
}

func TestSettle(t *testing.T) {
	strikes := models.Strikes{ShortCall: 6100, LongCall: 6120, ShortPut: 6000, LongPut: 5980}

	tests := []struct {
		name     string
		price    float64
		wantCall float64
		wantPut  float64
		wantPL   float64
	}{
		{"between shorts", 6050, 0, 0, 4.50},
		{"breaches short call", 6110, 10, 0, -5.50},
		{"beyond long call", 6150, 20, 0, -15.50},
		{"at short put", 6000, 0, 0, 4.50},
		{"breaches short put", 5995.25, 0, 4.75, -0.25},
		{"beyond long put", 5900, 0, 20, -15.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settle(strikes, 4.50, tt.price)
			assert.InDelta(t, tt.wantCall, s.CallDebit, 1e-9)
			assert.InDelta(t, tt.wantPut, s.PutDebit, 1e-9)
			assert.InDelta(t, tt.wantCall+tt.wantPut, s.Debit, 1e-9)
			assert.GreaterOrEqual(t, s.Debit, 0.0)
			assert.Equal(t, tt.wantPL, s.PL)
		})
	}
}

func newCalculator(prices PriceSource, positions ...models.Position) (*Calculator, *storage.MockStorage, *notify.Recorder) {
	log, _ := test.NewNullLogger()
	ledger := storage.NewMockStorage(positions...)
	rec := &notify.Recorder{}
	c := NewCalculator(ledger, prices, rec, log, "SPX")
	c.SetClock(func() time.Time { return time.Date(2025, 12, 10, 16, 5, 0, 0, time.UTC) })
	return c, ledger, rec
}

func TestSettleOpenPositions(t *testing.T) {
	done := openCondor()
	done.Status = models.StatusClosed
	done.ExitPL = models.NewNullMoney(1.20)

	c, ledger, rec := newCalculator(StaticPriceSource(6110), openCondor(), done)

	n, err := c.SettleOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := ledger.Positions()
	assert.Equal(t, models.StatusExpired, got[0].Status)
	assert.Equal(t, "16:05:00", got[0].ExitTime)
	assert.Equal(t, -5.50, got[0].ExitPL.Value)
	assert.Equal(t, "Settled at 6110.00", got[0].Notes)
	assert.Equal(t, done, got[1], "terminal rows are not touched")

	closed := rec.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, models.ReasonSettlement, closed[0].Reason)
	assert.Equal(t, 10.0, closed[0].Debit)

	n, err = c.SettleOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSettleOpenPositions_ManualNote(t *testing.T) {
	c, ledger, _ := newCalculator(StaticPriceSource(6050), openCondor())
	c.NoteSuffix = " (manual)"

	_, err := c.SettleOpenPositions(context.Background())
	require.NoError(t, err)
	got := ledger.Positions()[0]
	assert.Equal(t, 4.50, got.ExitPL.Value)
	assert.Equal(t, "Settled at 6050.00 (manual)", got.Notes)
}

func TestSettleOpenPositions_PriceUnavailable(t *testing.T) {
	streamer := mock.NewScriptedStreamer()
	c, ledger, rec := newCalculator(StreamPriceSource{Streamer: streamer, Timeout: 30 * time.Millisecond}, openCondor())

	n, err := c.SettleOpenPositions(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Zero(t, n)
	assert.True(t, ledger.Positions()[0].IsOpen())
	assert.Zero(t, ledger.GetSaveCallCount())
	assert.Empty(t, rec.Closed())
}

func TestSettleOpenPositions_NoOpenSkipsPrice(t *testing.T) {
	streamer := mock.NewScriptedStreamer()
	c, _, _ := newCalculator(StreamPriceSource{Streamer: streamer})

	n, err := c.SettleOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, streamer.Calls())
}

func TestSettleOpenPositions_PersistenceFailure(t *testing.T) {
	c, ledger, rec := newCalculator(StaticPriceSource(6050), openCondor(), openCondor())
	ledger.SetSaveError(errors.New("disk full"))

	n, err := c.SettleOpenPositions(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, ledger.OpenPositions(), 2)
	assert.Empty(t, rec.Closed())
}

func TestSettleOpenPositions_UnparsableStrikes(t *testing.T) {
	bad := openCondor()
	bad.ShortCall = "garbage"
	c, ledger, _ := newCalculator(StaticPriceSource(6050), bad, openCondor())

	n, err := c.SettleOpenPositions(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, ledger.Positions()[0].IsOpen())
	assert.Equal(t, models.StatusExpired, ledger.Positions()[1].Status)
}

func TestStreamPriceSource(t *testing.T) {
	t.Run("day close preferred", func(t *testing.T) {
		s := mock.NewScriptedStreamer(mock.Mark("SPX", 6049.5), mock.Summary("SPX", 6020, 6051.25, 6010))
		got, err := StreamPriceSource{Streamer: s, Timeout: time.Second}.SettlementPrice(context.Background(), "SPX")
		require.NoError(t, err)
		assert.Equal(t, 6051.25, got)
	})

	t.Run("quote mark fallback", func(t *testing.T) {
		s := mock.NewScriptedStreamer(mock.Quote("SPX", 6049, 6050), mock.Summary("SPX", 6020, 0, 6010))
		got, err := StreamPriceSource{Streamer: s, Timeout: 50 * time.Millisecond}.SettlementPrice(context.Background(), "SPX")
		require.NoError(t, err)
		assert.Equal(t, 6049.5, got)
	})

	t.Run("subscribe failure", func(t *testing.T) {
		s := mock.NewScriptedStreamer()
		s.FailWith(errors.New("feed down"))
		_, err := StreamPriceSource{Streamer: s}.SettlementPrice(context.Background(), "SPX")
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})
}

func TestStaticPriceSource(t *testing.T) {
	got, err := StaticPriceSource(6050).SettlementPrice(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, 6050.0, got)

	_, err = StaticPriceSource(0).SettlementPrice(context.Background(), "SPX")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

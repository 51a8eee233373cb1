package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func testPosition(date, strategyID string) models.Position {
	return models.Position{
		Date:            date,
		EntryTime:       "10:00:00",
		Symbol:          "SPX",
		Strategy:        "20 Delta",
		StrategyID:      strategyID,
		ShortCall:       ".SPXW251210C6100",
		LongCall:        ".SPXW251210C6120",
		ShortPut:        ".SPXW251210P6000",
		LongPut:         ".SPXW251210P5980",
		CreditCollected: 4.50,
		BuyingPower:     1550,
		ProfitTarget:    3.38,
		Status:          models.StatusOpen,
		IVRank:          23.5,
	}
}

// TestInterface runs the same contract against both implementations
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("CSVStorage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trades.csv")
		storage, err := NewCSVStorage(path)
		if err != nil {
			t.Fatalf("Failed to create CSV storage: %v", err)
		}
		testInterface(t, storage)
	})
}

func testInterface(t *testing.T, storage Interface) {
	if n := len(storage.OpenPositions()); n != 0 {
		t.Fatalf("Expected empty ledger, got %d open positions", n)
	}

	first, err := storage.Append(testPosition("2025-12-10", "IC-20D-1000"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := storage.Append(testPosition("2025-12-10", "IF-V1-1000"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("Expected rows 0 and 1, got %d and %d", first, second)
	}

	open := storage.OpenPositions()
	if len(open) != 2 {
		t.Fatalf("Expected 2 open positions, got %d", len(open))
	}
	if open[1].Row != 1 || open[1].StrategyID != "IF-V1-1000" {
		t.Errorf("Unexpected second open position: %+v", open[1])
	}

	// Mutating a returned copy must not reach the ledger.
	open[0].Notes = "tampered"
	if storage.Positions()[0].Notes != "" {
		t.Error("OpenPositions returned a shared position")
	}

	exitAt := time.Date(2025, 12, 10, 11, 15, 30, 0, time.UTC)
	err = storage.ApplyExit(first, models.Exit{
		Status: models.StatusClosed,
		Reason: models.ReasonProfitTarget,
		Time:   exitAt,
		PL:     1.126,
		Note:   "Profit Target",
	})
	if err != nil {
		t.Fatalf("ApplyExit failed: %v", err)
	}

	closed := storage.Positions()[first]
	if closed.Status != models.StatusClosed {
		t.Errorf("Expected CLOSED, got %s", closed.Status)
	}
	if closed.ExitTime != "11:15:30" {
		t.Errorf("Expected exit time 11:15:30, got %s", closed.ExitTime)
	}
	if !closed.ExitPL.Valid || closed.ExitPL.Value != 1.13 {
		t.Errorf("Expected exit P/L 1.13, got %v", closed.ExitPL)
	}
	if len(storage.OpenPositions()) != 1 {
		t.Errorf("Expected 1 open position after exit")
	}

	// A terminal row cannot be exited again.
	err = storage.ApplyExit(first, models.Exit{
		Status: models.StatusExpired,
		Reason: models.ReasonSettlement,
		Time:   exitAt.Add(time.Hour),
		PL:     -5,
	})
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
	if again := storage.Positions()[first]; again != closed {
		t.Errorf("Terminal row changed: %+v", again)
	}

	if err := storage.ApplyExit(7, models.Exit{Status: models.StatusClosed, Reason: models.ReasonTimeExit}); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("Expected ErrRowNotFound, got %v", err)
	}

	stats := storage.GetStatistics()
	if stats.TotalTrades != 1 || stats.WinningTrades != 1 || stats.OpenPositions != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
	if got := storage.GetDailyPnL("2025-12-10"); got != 1.13 {
		t.Errorf("Expected daily P/L 1.13, got %.2f", got)
	}
	if got := storage.GetDailyPnL("2025-12-11"); got != 0 {
		t.Errorf("Expected no P/L on another day, got %.2f", got)
	}
}

func TestMockStorageSaveError(t *testing.T) {
	storage := NewMockStorage(testPosition("2025-12-10", "IC-20D-1000"))
	storage.SetSaveError(errors.New("disk full"))

	err := storage.ApplyExit(0, models.Exit{
		Status: models.StatusClosed,
		Reason: models.ReasonTimeExit,
		Time:   time.Now(),
	})
	if err == nil {
		t.Fatal("Expected save error")
	}
	if !storage.Positions()[0].IsOpen() {
		t.Error("Position changed despite save error")
	}
	if storage.GetSaveCallCount() != 1 {
		t.Errorf("Expected 1 save call, got %d", storage.GetSaveCallCount())
	}
}

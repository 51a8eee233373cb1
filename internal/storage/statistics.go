package storage

import (
	"strings"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// Statistics summarizes realized results in ledger order.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"` // deepest fall of cumulative P/L below its running peak, <= 0
	CurrentStreak int     `json:"current_streak"`
	OpenPositions int     `json:"open_positions"`
}

// ComputeStatistics folds every row with a realized P/L into Statistics.
// Breakeven trades count toward the total but neither wins nor losses.
func ComputeStatistics(positions []models.Position) *Statistics {
	stats := &Statistics{}
	var peak, cumulative float64
	for i := range positions {
		p := &positions[i]
		if p.IsOpen() {
			stats.OpenPositions++
			continue
		}
		if !p.ExitPL.Valid {
			continue
		}
		stats.update(p.ExitPL.Value)

		cumulative += p.ExitPL.Value
		if cumulative > peak {
			peak = cumulative
		}
		if dd := cumulative - peak; dd < stats.MaxDrawdown {
			stats.MaxDrawdown = dd
		}
	}

	decided := stats.WinningTrades + stats.LosingTrades
	if decided > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(decided) * 100
	}
	stats.TotalPnL = util.RoundCents(stats.TotalPnL)
	stats.AverageWin = util.RoundCents(stats.AverageWin)
	stats.AverageLoss = util.RoundCents(stats.AverageLoss)
	stats.MaxDrawdown = util.RoundCents(stats.MaxDrawdown)
	return stats
}

func (s *Statistics) update(pnl float64) {
	s.TotalTrades++
	s.TotalPnL += pnl

	switch {
	case pnl > 0:
		s.WinningTrades++
		s.AverageWin += (pnl - s.AverageWin) / float64(s.WinningTrades)
		if s.CurrentStreak >= 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
	case pnl < 0:
		s.LosingTrades++
		s.AverageLoss += (pnl - s.AverageLoss) / float64(s.LosingTrades)
		if s.CurrentStreak <= 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
	}
}

func dailyPnL(positions []models.Position, date string) float64 {
	date = strings.TrimSpace(date)
	var total float64
	for i := range positions {
		p := &positions[i]
		if p.ExitPL.Valid && strings.TrimSpace(p.Date) == date {
			total += p.ExitPL.Value
		}
	}
	return util.RoundCents(total)
}

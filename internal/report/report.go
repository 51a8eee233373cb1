// Package report renders ledger performance as text tables.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// StrategySummary aggregates the realized trades of one strategy.
type StrategySummary struct {
	Strategy string  `json:"strategy"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Open     int     `json:"open"`
	Total    float64 `json:"total"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
	Median   float64 `json:"median"`
	Best     float64 `json:"best"`
	Worst    float64 `json:"worst"`
}

// WinRate is the share of decided trades that won, in percent.
func (s StrategySummary) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided) * 100
}

// DaySummary is the realized P/L of one entry date.
type DaySummary struct {
	Date   string  `json:"date"`
	Trades int     `json:"trades"`
	PL     float64 `json:"pl"`
}

// ByStrategy groups positions by strategy name, sorted by name.
func ByStrategy(positions []models.Position) ([]StrategySummary, error) {
	pls := make(map[string][]float64)
	open := make(map[string]int)
	var names []string
	for i := range positions {
		p := &positions[i]
		if _, seen := pls[p.Strategy]; !seen {
			pls[p.Strategy] = nil
			names = append(names, p.Strategy)
		}
		if p.IsOpen() {
			open[p.Strategy]++
			continue
		}
		if p.ExitPL.Valid {
			pls[p.Strategy] = append(pls[p.Strategy], p.ExitPL.Value)
		}
	}
	sort.Strings(names)

	out := make([]StrategySummary, 0, len(names))
	for _, name := range names {
		s, err := summarize(name, pls[name])
		if err != nil {
			return nil, fmt.Errorf("summarizing %q: %w", name, err)
		}
		s.Open = open[name]
		out = append(out, s)
	}
	return out, nil
}

func summarize(name string, pl []float64) (StrategySummary, error) {
	s := StrategySummary{Strategy: name, Trades: len(pl)}
	if len(pl) == 0 {
		return s, nil
	}
	for _, v := range pl {
		switch {
		case v > 0:
			s.Wins++
		case v < 0:
			s.Losses++
		}
	}

	var err error
	if s.Total, err = stats.Sum(pl); err != nil {
		return s, err
	}
	if s.Mean, err = stats.Mean(pl); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(pl); err != nil {
		return s, err
	}
	if s.Best, err = stats.Max(pl); err != nil {
		return s, err
	}
	if s.Worst, err = stats.Min(pl); err != nil {
		return s, err
	}
	if len(pl) > 1 {
		if s.StdDev, err = stats.StandardDeviationSample(pl); err != nil {
			return s, err
		}
	}

	s.Total = util.RoundCents(s.Total)
	s.Mean = util.RoundCents(s.Mean)
	s.Median = util.RoundCents(s.Median)
	s.StdDev = util.RoundCents(s.StdDev)
	return s, nil
}

// ByDay totals realized P/L per entry date, oldest first.
func ByDay(positions []models.Position) []DaySummary {
	idx := make(map[string]int)
	var out []DaySummary
	for i := range positions {
		p := &positions[i]
		if p.IsOpen() || !p.ExitPL.Valid {
			continue
		}
		j, ok := idx[p.Date]
		if !ok {
			j = len(out)
			idx[p.Date] = j
			out = append(out, DaySummary{Date: p.Date})
		}
		out[j].Trades++
		out[j].PL += p.ExitPL.Value
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date < out[b].Date })
	for i := range out {
		out[i].PL = util.RoundCents(out[i].PL)
	}
	return out
}

// Write renders the strategy, daily and overall tables for the ledger.
func Write(w io.Writer, positions []models.Position) error {
	summaries, err := ByStrategy(positions)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Strategies:")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Strategy", "Trades", "Open", "Win %", "Total", "Mean", "StdDev", "Median", "Best", "Worst"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range summaries {
		table.Append([]string{
			s.Strategy,
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%d", s.Open),
			fmt.Sprintf("%.1f%%", s.WinRate()),
			util.FormatMoney(s.Total),
			util.FormatMoney(s.Mean),
			util.FormatMoney(s.StdDev),
			util.FormatMoney(s.Median),
			util.FormatMoney(s.Best),
			util.FormatMoney(s.Worst),
		})
	}
	table.Render()

	fmt.Fprintln(w, "\nDaily P/L:")
	daily := tablewriter.NewWriter(w)
	daily.SetHeader([]string{"Date", "Trades", "P/L"})
	daily.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, d := range ByDay(positions) {
		daily.Append([]string{d.Date, fmt.Sprintf("%d", d.Trades), util.FormatMoney(d.PL)})
	}
	daily.Render()

	overall := storage.ComputeStatistics(positions)
	fmt.Fprintln(w, "\nOverall:")
	totals := tablewriter.NewWriter(w)
	totals.SetColumnSeparator("")
	totals.SetBorder(false)
	totals.AppendBulk([][]string{
		{"Trades", fmt.Sprintf("%d", overall.TotalTrades)},
		{"Open", fmt.Sprintf("%d", overall.OpenPositions)},
		{"Win rate", fmt.Sprintf("%.1f%%", overall.WinRate)},
		{"Total P/L", util.FormatMoney(overall.TotalPnL)},
		{"Average win", util.FormatMoney(overall.AverageWin)},
		{"Average loss", util.FormatMoney(overall.AverageLoss)},
		{"Max drawdown", util.FormatMoney(overall.MaxDrawdown)},
		{"Streak", fmt.Sprintf("%d", overall.CurrentStreak)},
	})
	totals.Render()
	return nil
}

// audit_ledger - A utility to audit the trade ledger for inconsistencies
// This script helps identify rows the bot could not manage correctly: stale
// OPEN rows, unparsable legs, inverted strikes and terminal rows without P/L.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
)

// Issue is one finding about a ledger row.
type Issue struct {
	Row     int    `json:"row"`
	ID      string `json:"strategy_id"`
	Problem string `json:"problem"`
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Ledger: %s\n\n", cfg.Storage.Path)
	}

	store, err := storage.NewCSVStorage(cfg.Storage.Path)
	if err != nil {
		logrus.Fatalf("Failed to open ledger: %v", err)
	}

	today := time.Now().In(cfg.Location())
	positions := store.Positions()
	issues := auditPositions(positions, today, cfg.Location())

	if *jsonOutput {
		output, err := json.MarshalIndent(issues, "", "  ")
		if err != nil {
			logrus.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(output))
		return
	}

	stats := store.GetStatistics()
	fmt.Printf("=== LEDGER AUDIT ===\n")
	fmt.Printf("Rows: %d (open %d, realized %d)\n\n", len(positions), stats.OpenPositions, stats.TotalTrades)

	if len(issues) == 0 {
		fmt.Printf("No obvious issues detected.\n")
		return
	}
	fmt.Printf("POTENTIAL ISSUES FOUND:\n")
	for i, issue := range issues {
		fmt.Printf("  %d. row %d (%s): %s\n", i+1, issue.Row, issue.ID, issue.Problem)
	}
}

// auditPositions checks every row against the ledger invariants.
func auditPositions(positions []models.Position, today time.Time, loc *time.Location) []Issue {
	var issues []Issue
	add := func(row int, p *models.Position, format string, args ...interface{}) {
		issues = append(issues, Issue{Row: row, ID: p.StrategyID, Problem: fmt.Sprintf(format, args...)})
	}
	todayStr := today.Format(models.DateLayout)

	for i := range positions {
		p := &positions[i]
		status := models.ParseStatus(string(p.Status))

		switch {
		case status == models.StatusOpen:
			if p.ExitPL.Valid || p.ExitTime != "" {
				add(i, p, "OPEN row carries exit fields")
			}
			if day, err := p.EntryDay(loc); err != nil {
				add(i, p, "unparsable entry date %q", p.Date)
			} else if day.Format(models.DateLayout) < todayStr {
				add(i, p, "OPEN since %s, will be expired as stale", p.Date)
			}
		case status.IsTerminal():
			if !p.ExitPL.Valid {
				add(i, p, "%s row has no exit P/L", status)
			}
		default:
			add(i, p, "unknown status %q", p.Status)
		}

		strikes, err := p.Strikes()
		if err != nil {
			add(i, p, "unparsable leg symbol: %v", err)
		} else if err := strikes.Validate(); err != nil {
			add(i, p, "strike ordering: %v", err)
		}

		if p.Credit() <= 0 {
			add(i, p, "non-positive credit %.2f", p.Credit())
		} else if float64(p.ProfitTarget) >= p.Credit() {
			add(i, p, "profit-target debit %.2f not below credit %.2f", float64(p.ProfitTarget), p.Credit())
		}
	}
	return issues
}

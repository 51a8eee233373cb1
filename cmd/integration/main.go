// Command integration runs an end-to-end dry run against the configured
// broker: chain, reference data, greeks, leg selection and pricing for every
// strategy, plus a ledger round trip in a temporary file. Nothing is written
// to the real ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/mock"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/settlement"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

type harness struct {
	cfg       *config.Config
	broker    broker.Broker
	selector  *strategy.Selector
	logger    *logrus.Logger
	now       time.Time
	contracts []models.Contract
	deltas    map[string]float64
	spot      float64
	dayOpen   float64
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	fmt.Println("=== 0DTE Condor Bot - End-to-End Integration Test ===")
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var b broker.Broker
	if cfg.Broker.Provider == "mock" {
		b = mock.NewDataProvider(cfg.Trading.Underlying, cfg.Location())
	} else {
		b = broker.NewTastytradeClient(ctx, broker.TastytradeConfig{
			BaseURL:      cfg.Broker.BaseURL,
			ClientSecret: cfg.Broker.ClientSecret,
			RefreshToken: cfg.Broker.RefreshToken,
			Timeout:      cfg.BrokerTimeout(),
		}, logger)
	}

	h := &harness{
		cfg:    cfg,
		broker: b,
		selector: strategy.NewSelector(b, strategy.SelectorConfig{
			GreeksTimeout:  cfg.GreeksTimeout(),
			GreeksCoverage: cfg.MarketData.GreeksCoverage,
			QuoteTimeout:   cfg.QuoteTimeout(),
		}, logger),
		logger: logger,
		now:    time.Now().In(cfg.Location()),
	}

	fmt.Println("✅ All components initialized successfully")
	fmt.Println()

	if !h.run(ctx) {
		os.Exit(1)
	}
}

func (h *harness) run(ctx context.Context) bool {
	tests := []struct {
		name string
		fn   func(context.Context) bool
	}{
		{"Broker Connectivity", h.testChain},
		{"Reference Data", h.testReference},
		{"Greeks Coverage", h.testGreeks},
		{"Leg Selection (dry run)", h.testSelection},
		{"Ledger Round Trip", h.testLedger},
	}

	passed := 0
	for i, tt := range tests {
		title := fmt.Sprintf("Test %d: %s", i+1, tt.name)
		fmt.Println(title)
		fmt.Println(underline(len(title)))
		if tt.fn(ctx) {
			passed++
			fmt.Println("✅ PASSED")
		} else {
			fmt.Println("❌ FAILED")
		}
		fmt.Println()
	}

	fmt.Printf("=== Results: %d/%d tests passed ===\n", passed, len(tests))
	return passed == len(tests)
}

func underline(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '='
	}
	return string(b)
}

func (h *harness) testChain(ctx context.Context) bool {
	chain, err := h.broker.FetchChain(ctx, h.cfg.Trading.Underlying)
	if err != nil {
		h.logger.WithError(err).Error("FetchChain failed")
		return false
	}
	fmt.Printf("Expirations: %d (first %v)\n", len(chain), firstN(chain.Expirations(), 3))

	contracts, ok := chain.ForDate(h.now)
	if !ok {
		fmt.Printf("No expiration on %s\n", h.now.Format(models.DateLayout))
		return false
	}
	h.contracts = contracts
	fmt.Printf("0DTE contracts: %d\n", len(contracts))

	ivr, err := h.broker.IVRank(ctx, h.cfg.Trading.Underlying)
	if err != nil {
		h.logger.WithError(err).Warn("IV rank unavailable")
	} else {
		fmt.Printf("IV Rank: %.2f\n", strategy.NormalizeIVRank(ivr))
	}
	return true
}

func (h *harness) testReference(ctx context.Context) bool {
	underlying := h.cfg.Trading.Underlying
	snap, err := marketdata.Reference(ctx, h.broker, underlying, h.cfg.SpotTimeout())
	if err != nil {
		h.logger.WithError(err).Error("Reference subscription failed")
		return false
	}
	spot, ok := snap.Mark(underlying)
	if !ok {
		fmt.Printf("No quote for %s\n", underlying)
		return false
	}
	h.spot = spot
	fmt.Printf("%s spot: %.2f\n", underlying, spot)

	if sum, ok := snap.Summary(underlying); ok {
		h.dayOpen = sum.DayOpen
		fmt.Printf("Open %.2f, previous close %.2f, close %.2f\n", sum.DayOpen, sum.PrevClose, sum.DayClose)
		g, ok := strategy.ClassifyGap(sum.PrevClose, sum.DayOpen)
		var gap *strategy.Gap
		if ok {
			gap = &g
		}
		trade, reason := strategy.ShouldTradeGap(gap)
		fmt.Printf("Gap filter: trade=%t (%s)\n", trade, reason)
	} else {
		fmt.Println("No summary published yet")
	}
	return true
}

func (h *harness) testGreeks(ctx context.Context) bool {
	if len(h.contracts) == 0 {
		fmt.Println("Skipped: no chain")
		return false
	}
	deltas, err := h.selector.Deltas(ctx, h.contracts)
	if err != nil {
		h.logger.WithError(err).Error("Greeks subscription failed")
		return false
	}
	h.deltas = deltas
	coverage := float64(len(deltas)) / float64(len(h.contracts))
	fmt.Printf("Greeks for %d/%d contracts (%.0f%%)\n", len(deltas), len(h.contracts), coverage*100)
	return len(deltas) > 0
}

func (h *harness) testSelection(ctx context.Context) bool {
	if len(h.deltas) == 0 {
		fmt.Println("Skipped: no greeks")
		return false
	}
	defs, err := h.cfg.Definitions()
	if err != nil {
		h.logger.WithError(err).Error("Invalid strategies")
		return false
	}

	ok := true
	for _, def := range defs {
		params := def.Params()
		if def.Type == strategy.Dynamic {
			move, known := strategy.OpeningMove(h.spot, h.dayOpen)
			if !known {
				fmt.Printf("[%s] opening move unknown, skipped\n", def.Name)
				continue
			}
			params = def.Resolve(move).Params
		}

		combo, err := h.selector.FindLegs(h.contracts, h.deltas, params)
		if err != nil {
			fmt.Printf("[%s] no legs: %v\n", def.Name, err)
			ok = false
			continue
		}
		if err := h.selector.Price(ctx, combo); err != nil || !combo.Priced() {
			fmt.Printf("[%s] could not price legs\n", def.Name)
			ok = false
			continue
		}
		econ := strategy.ComputeEconomics(combo, def.ProfitTargetPct)
		s := combo.Strikes()
		settled := settlement.Settle(s, econ.Credit, h.spot)
		fmt.Printf("[%s] %.0f/%.0fC %.0f/%.0fP credit %.2f (%.1f%% of width) target debit %.2f, BP %.2f, P/L if settled at spot %.2f\n",
			def.Name, s.ShortCall, s.LongCall, s.ShortPut, s.LongPut,
			econ.Credit, econ.CreditPct(), econ.ProfitTargetDebit, econ.BuyingPower, settled.PL)
	}
	return ok
}

func (h *harness) testLedger(context.Context) bool {
	dir, err := os.MkdirTemp("", "condor-integration")
	if err != nil {
		h.logger.WithError(err).Error("Temp dir failed")
		return false
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			h.logger.WithError(err).Warn("Failed to cleanup test ledger")
		}
	}()

	path := filepath.Join(dir, "paper_trades.csv")
	store, err := storage.NewCSVStorage(path)
	if err != nil {
		h.logger.WithError(err).Error("Open ledger failed")
		return false
	}
	row, err := store.Append(models.Position{
		Date: h.now.Format(models.DateLayout), EntryTime: h.now.Format(models.ClockLayout),
		Symbol: h.cfg.Trading.Underlying, Strategy: "Integration", StrategyID: "IT-0000",
		ShortCall: ".SPXW000000C6100", LongCall: ".SPXW000000C6120",
		ShortPut: ".SPXW000000P6000", LongPut: ".SPXW000000P5980",
		CreditCollected: 1.00, ProfitTarget: 0.75, Status: models.StatusOpen,
	})
	if err != nil {
		h.logger.WithError(err).Error("Append failed")
		return false
	}
	if err := store.ApplyExit(row, models.Exit{
		Status: models.StatusClosed, Reason: models.ReasonProfitTarget, Time: h.now, PL: 0.30, Note: "integration",
	}); err != nil {
		h.logger.WithError(err).Error("ApplyExit failed")
		return false
	}

	reopened, err := storage.NewCSVStorage(path)
	if err != nil {
		h.logger.WithError(err).Error("Reopen failed")
		return false
	}
	positions := reopened.Positions()
	if len(positions) != 1 || positions[0].Status != models.StatusClosed || !positions[0].ExitPL.Valid {
		fmt.Printf("Unexpected ledger contents: %+v\n", positions)
		return false
	}
	fmt.Printf("Row %d persisted as %s with P/L %.2f\n", row, positions[0].Status, positions[0].ExitPL.Value)
	return true
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

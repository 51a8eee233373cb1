package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// SelectorConfig bounds the market-data waits of a Selector.
type SelectorConfig struct {
	GreeksTimeout  time.Duration
	GreeksCoverage float64
	QuoteTimeout   time.Duration
}

// Selector chooses and prices legs using live market data.
type Selector struct {
	streamer marketdata.Streamer
	cfg      SelectorConfig
	log      *logrus.Logger
}

// NewSelector creates a Selector. Zero config values fall back to 10s greeks,
// 90% coverage and 5s quotes.
func NewSelector(streamer marketdata.Streamer, cfg SelectorConfig, log *logrus.Logger) *Selector {
	if cfg.GreeksTimeout <= 0 {
		cfg.GreeksTimeout = 10 * time.Second
	}
	if cfg.GreeksCoverage <= 0 {
		cfg.GreeksCoverage = 0.9
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Selector{streamer: streamer, cfg: cfg, log: log}
}

// Deltas collects greeks for every contract of the chain.
func (s *Selector) Deltas(ctx context.Context, contracts []models.Contract) (map[string]float64, error) {
	symbols := make([]string, 0, len(contracts))
	for _, c := range contracts {
		symbols = append(symbols, c.Symbol)
	}
	s.log.WithField("symbols", len(symbols)).Debug("Subscribing to greeks")

	snap, err := marketdata.Greeks(ctx, s.streamer, symbols, s.cfg.GreeksTimeout, s.cfg.GreeksCoverage)
	if err != nil {
		return nil, fmt.Errorf("collecting greeks: %w", err)
	}
	deltas := snap.Deltas()
	if len(deltas) < len(symbols) {
		s.log.WithFields(logrus.Fields{
			"received":  len(deltas),
			"requested": len(symbols),
		}).Warn("Partial greeks coverage")
	}
	return deltas, nil
}

// FindLegs selects the spread described by p from the chain and its deltas.
func (s *Selector) FindLegs(contracts []models.Contract, deltas map[string]float64, p Params) (*models.SpreadCombo, error) {
	if len(deltas) == 0 {
		return nil, fmt.Errorf("%w: no greeks data", ErrNoCombo)
	}
	calls, puts := SplitChain(contracts, deltas)
	combo, err := Select(p, calls, puts)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"type":       p.Type,
		"short_call": combo.ShortCall.Strike,
		"long_call":  combo.LongCall.Strike,
		"short_put":  combo.ShortPut.Strike,
		"long_put":   combo.LongPut.Strike,
	}).Info("Selected legs")
	return combo, nil
}

// Price attaches a mark to every leg from a fresh quote snapshot. Legs without
// a quote are priced at 0; callers check combo.Priced().
func (s *Selector) Price(ctx context.Context, combo *models.SpreadCombo) error {
	snap, err := marketdata.Quotes(ctx, s.streamer, combo.Symbols(), s.cfg.QuoteTimeout)
	if err != nil {
		return fmt.Errorf("pricing legs: %w", err)
	}
	for _, leg := range combo.Legs() {
		mark, ok := snap.Mark(leg.Symbol)
		if !ok {
			s.log.WithField("symbol", leg.Symbol).Warn("No quote for leg, pricing at 0")
			mark = 0
		}
		leg.Price = mark
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/notify"
	"github.com/eddiefleurent/scranton_condor/internal/settlement"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// Tick runs one poll step: rollover, entry triggers, then the monitor or
// settlement work that fits the session. Failures are logged and never
// stop the loop.
func (b *Bot) Tick(ctx context.Context) {
	now := b.now().In(b.loc)
	b.rollover(now)

	session := b.config.SessionAt(now)
	if session == config.MarketOpen {
		for _, trigger := range b.entryTimes {
			if trigger.Matches(now) && b.day.Fire(trigger) {
				b.logger.Infof("Entry time triggered: %s", trigger)
				b.runEntryCycle(ctx, trigger)
			}
		}
	}

	switch session {
	case config.MarketOpen:
		if _, err := b.monitor.CheckOpenPositions(ctx); err != nil {
			b.logError(err, "Monitor cycle failed")
		}
	case config.AfterClose:
		if _, err := b.monitor.ExpireStale(ctx); err != nil {
			b.logError(err, "Stale check failed")
		}
		if _, err := b.settler.SettleOpenPositions(ctx); err != nil {
			if errors.Is(err, settlement.ErrPriceUnavailable) {
				b.logger.WithError(err).Warn("Settlement price unavailable, retrying next poll")
			} else {
				b.logError(err, "Settlement failed")
			}
		}
	default:
		if _, err := b.monitor.ExpireStale(ctx); err != nil {
			b.logError(err, "Stale check failed")
		}
	}
}

func (b *Bot) rollover(now time.Time) {
	if b.day.Covers(now) {
		return
	}
	b.day = NewDayContext(now)
	b.logger.Infof("New trading day: %s", b.day.Date)
}

// logError logs ledger write failures at error level and the rest at warn.
func (b *Bot) logError(err error, msg string) {
	if errors.Is(err, storage.ErrNotOpen) || errors.Is(err, context.Canceled) {
		b.logger.WithError(err).Warn(msg)
		return
	}
	b.logger.WithError(err).Error(msg)
}

// entryCycle holds what one trigger fetches once and shares across the
// strategies that fire on it.
type entryCycle struct {
	bot       *Bot
	trigger   models.Clock
	now       time.Time
	contracts []models.Contract
	deltas    map[string]float64
	ivRank    float64
	reference *marketdata.Snapshot
	spotPrice *float64
}

func (b *Bot) runEntryCycle(ctx context.Context, trigger models.Clock) int {
	underlying := b.config.Trading.Underlying
	now := b.now().In(b.loc)
	log := b.logger.WithField("trigger", trigger.String())

	chain, err := b.retryClient.FetchChainWithRetry(ctx, underlying)
	if err != nil {
		log.WithError(err).Error("Failed to fetch option chain, skipping cycle")
		return 0
	}
	contracts, ok := chain.ForDate(now)
	if !ok {
		log.Warn("No 0DTE expiration found. Skipping cycle.")
		return 0
	}

	ivRank, err := b.retryClient.IVRankWithRetry(ctx, underlying)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch IV rank, recording 0")
		ivRank = 0
	}

	cycle := &entryCycle{
		bot:       b,
		trigger:   trigger,
		now:       now,
		contracts: contracts,
		ivRank:    strategy.NormalizeIVRank(ivRank),
	}

	opened := 0
	for _, def := range b.definitions {
		if !def.AllowedAt(trigger) {
			continue
		}
		if cycle.open(ctx, def) {
			opened++
		}
	}
	log.Infof("Entry cycle complete: %d position(s) opened", opened)
	return opened
}

// open runs one strategy for the trigger and reports whether a position was
// recorded.
func (c *entryCycle) open(ctx context.Context, def strategy.Definition) bool {
	b := c.bot
	log := b.logger.WithFields(logrus.Fields{
		"strategy":    def.Name,
		"strategy_id": def.ID(c.trigger),
	})

	if def.GapFilter {
		gap := b.gapDecision(ctx)
		if !gap.Trade {
			log.Infof("Skipping - overnight filter: %s", gap.Reason)
			return false
		}
		log.Infof("Overnight filter passed: %s", gap.Reason)
	}

	params := def.Params()
	extra := ""
	if def.Type == strategy.Dynamic {
		move, ok := c.openingMove(ctx)
		if !ok {
			log.Warn("Could not determine the opening move. Skipping.")
			return false
		}
		variant := def.Resolve(move)
		params = variant.Params
		extra = variant.Note()
		log.Infof("Opening move %+.2f%% selected %s", move, variant.Label)
	}

	if c.deltas == nil {
		deltas, err := b.selector.Deltas(ctx, c.contracts)
		if err != nil {
			log.WithError(err).Warn("Greeks unavailable. Skipping.")
			return false
		}
		c.deltas = deltas
	}

	combo, err := b.selector.FindLegs(c.contracts, c.deltas, params)
	if err != nil {
		log.WithError(err).Warn("Could not find suitable legs.")
		return false
	}
	if err := b.selector.Price(ctx, combo); err != nil {
		log.WithError(err).Warn("Could not price legs.")
		return false
	}
	if !combo.Priced() {
		log.Warn("No quotes for any leg. Skipping.")
		return false
	}

	econ := strategy.ComputeEconomics(combo, def.ProfitTargetPct)
	if econ.Credit <= 0 {
		log.WithField("credit", econ.Credit).Warn("Spread prices to no credit. Skipping.")
		return false
	}

	pos := models.NewPosition(c.now, b.config.Trading.Underlying, def.Name, def.ID(c.trigger), combo,
		econ.Credit, econ.BuyingPower, econ.ProfitTargetDebit, c.ivRank, entryNote(def.Name, extra))
	row, err := b.storage.Append(pos)
	if err != nil {
		log.WithError(err).Error("Failed to record position")
		return false
	}
	log.WithFields(logrus.Fields{
		"row":    row,
		"credit": pos.Credit(),
		"target": float64(pos.ProfitTarget),
	}).Infof("Trade logged. Credit: $%.2f, IV Rank: %.2f", pos.Credit(), c.ivRank)

	spot, _ := c.spot(ctx)
	b.notifier.PositionOpened(notify.OpenedEvent{
		Time:              c.now,
		Strategy:          def.Name,
		StrategyID:        pos.StrategyID,
		ShortCall:         pos.ShortCall,
		LongCall:          pos.LongCall,
		ShortPut:          pos.ShortPut,
		LongPut:           pos.LongPut,
		Credit:            pos.Credit(),
		ProfitTarget:      econ.ProfitTarget,
		ProfitTargetDebit: float64(pos.ProfitTarget),
		Width:             econ.Width,
		Spot:              spot,
		IVRank:            c.ivRank,
		Notes:             pos.Notes,
	})
	return true
}

func (c *entryCycle) referenceSnapshot(ctx context.Context) *marketdata.Snapshot {
	if c.reference != nil {
		return c.reference
	}
	b := c.bot
	snap, err := marketdata.Reference(ctx, b.broker, b.config.Trading.Underlying, b.config.SpotTimeout())
	if err != nil {
		b.logger.WithError(err).Warn("Reference data unavailable")
		snap = marketdata.NewSnapshot()
	}
	c.reference = snap
	return snap
}

// spot prefers the reference snapshot when one was already collected this
// cycle and otherwise asks for the underlying's quote alone.
func (c *entryCycle) spot(ctx context.Context) (float64, bool) {
	b := c.bot
	underlying := b.config.Trading.Underlying
	if c.reference != nil {
		if m, ok := c.reference.Mark(underlying); ok {
			return m, true
		}
	}
	if c.spotPrice == nil {
		price, ok, err := marketdata.Spot(ctx, b.broker, underlying, b.config.SpotTimeout())
		if err != nil {
			b.logger.WithError(err).Warn("Spot quote unavailable")
		}
		if !ok {
			price = 0
		}
		c.spotPrice = &price
	}
	return *c.spotPrice, *c.spotPrice > 0
}

func (c *entryCycle) openingMove(ctx context.Context) (float64, bool) {
	snap := c.referenceSnapshot(ctx)
	underlying := c.bot.config.Trading.Underlying
	spot, ok := snap.Mark(underlying)
	if !ok {
		return 0, false
	}
	sum, ok := snap.Summary(underlying)
	if !ok {
		return 0, false
	}
	return strategy.OpeningMove(spot, sum.DayOpen)
}

// gapDecision returns today's overnight-gap verdict, looking it up once per
// day. Missing reference data is cached as a decision to trade.
func (b *Bot) gapDecision(ctx context.Context) GapDecision {
	if d, ok := b.day.Gap(); ok {
		return d
	}

	var gap *strategy.Gap
	underlying := b.config.Trading.Underlying
	snap, err := marketdata.Reference(ctx, b.broker, underlying, b.config.SpotTimeout())
	if err != nil {
		b.logger.WithError(err).Warn("Failed to fetch overnight gap. Filter-based strategies will trade anyway.")
	} else if sum, ok := snap.Summary(underlying); ok {
		if g, ok := strategy.ClassifyGap(sum.PrevClose, sum.DayOpen); ok {
			gap = &g
			b.logger.Infof("Overnight gap: %+.2f%% (%s)", g.Pct, g.Class)
		}
	}

	trade, reason := strategy.ShouldTradeGap(gap)
	d := GapDecision{Gap: gap, Trade: trade, Reason: reason}
	b.day.SetGap(d)
	verdict := "SKIP"
	if trade {
		verdict = "TRADE"
	}
	b.logger.Infof("Gap filter decision: %s - %s", verdict, reason)
	return d
}

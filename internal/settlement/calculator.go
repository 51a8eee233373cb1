package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/notify"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// Calculator settles OPEN positions after the close. Whether the session is
// over is the caller's decision.
type Calculator struct {
	ledger     storage.Interface
	prices     PriceSource
	notifier   notify.Notifier
	log        *logrus.Logger
	underlying string
	now        func() time.Time
	// NoteSuffix is appended to the settlement note, e.g. " (manual)".
	NoteSuffix string
}

// NewCalculator creates a calculator for underlying.
func NewCalculator(ledger storage.Interface, prices PriceSource, notifier notify.Notifier, log *logrus.Logger, underlying string) *Calculator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Calculator{
		ledger:     ledger,
		prices:     prices,
		notifier:   notifier,
		log:        log,
		underlying: underlying,
		now:        time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (c *Calculator) SetClock(now func() time.Time) {
	c.now = now
}

// Settlement is the payoff of one position at a settlement price.
type Settlement struct {
	Price     float64
	CallDebit float64
	PutDebit  float64
	Debit     float64
	PL        float64 // rounded to cents
}

// Settle computes the intrinsic payoff of a position with the given strikes
// and credit. It uses the same debit formula as the live monitor.
func Settle(strikes models.Strikes, credit, price float64) Settlement {
	m := strategy.IntrinsicMarks(strikes, price)
	debit := strategy.DebitToClose(m)
	return Settlement{
		Price:     price,
		CallDebit: m.ShortCall - m.LongCall,
		PutDebit:  m.ShortPut - m.LongPut,
		Debit:     debit,
		PL:        util.RoundCents(credit - debit),
	}
}

// SettleOpenPositions expires every OPEN row at its intrinsic value and
// returns how many were settled. Without a price nothing is written and the
// error wraps ErrPriceUnavailable. Rows whose exit could not be persisted
// are reported in the returned error; the rest are still settled.
func (c *Calculator) SettleOpenPositions(ctx context.Context) (int, error) {
	if err := c.ledger.Load(); err != nil {
		return 0, fmt.Errorf("reloading ledger: %w", err)
	}
	open := c.ledger.OpenPositions()
	if len(open) == 0 {
		return 0, nil
	}

	price, err := c.prices.SettlementPrice(ctx, c.underlying)
	if err != nil {
		c.log.Warnf("Cannot settle %d open position(s): %v", len(open), err)
		return 0, err
	}
	c.log.Infof("Market closed. Settling %d position(s) at %s %.2f", len(open), c.underlying, price)

	now := c.now()
	settled := 0
	var errs []error
	for _, op := range open {
		entry := c.log.WithFields(logrus.Fields{
			"row":         op.Row,
			"strategy":    op.Strategy,
			"strategy_id": op.StrategyID,
		})
		strikes, err := op.Strikes()
		if err != nil {
			entry.Errorf("Cannot parse strikes, skipping: %v", err)
			errs = append(errs, fmt.Errorf("row %d: %w", op.Row, err))
			continue
		}

		s := Settle(strikes, op.Credit(), price)
		exit := models.Exit{
			Status: models.StatusExpired,
			Reason: models.ReasonSettlement,
			Time:   now,
			PL:     s.PL,
			Note:   fmt.Sprintf("Settled at %.2f%s", price, c.NoteSuffix),
		}
		if err := c.ledger.ApplyExit(op.Row, exit); err != nil {
			entry.Errorf("Failed to persist settlement: %v", err)
			errs = append(errs, fmt.Errorf("row %d: %w", op.Row, err))
			continue
		}
		settled++
		entry.Infof("Expired: call debit %.2f, put debit %.2f, total %.2f, P/L %.2f",
			s.CallDebit, s.PutDebit, s.Debit, s.PL)

		c.notifier.PositionClosed(notify.ClosedEvent{
			Time:       now,
			Strategy:   op.Strategy,
			StrategyID: op.StrategyID,
			Status:     exit.Status,
			Reason:     exit.Reason,
			Credit:     op.Credit(),
			Debit:      util.RoundCents(s.Debit),
			PL:         s.PL,
			Note:       exit.Note,
		})
	}

	if settled > 0 {
		c.log.Infof("Expired %d trade(s)", settled)
	}
	return settled, errors.Join(errs...)
}

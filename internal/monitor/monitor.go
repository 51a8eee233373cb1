package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/notify"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// DefaultQuoteTimeout bounds one mark-to-market collection.
const DefaultQuoteTimeout = 5 * time.Second

// Config holds the monitor's settings.
type Config struct {
	Underlying   string
	Location     *time.Location
	QuoteTimeout time.Duration
	// TimeExits maps a ledger strategy name to its time cutoff.
	TimeExits map[string]models.Clock
	// ReadOnly evaluates and reports without writing exits.
	ReadOnly bool
}

// PositionStatus is the evaluation of one open row in a cycle.
type PositionStatus struct {
	Row        int
	Position   models.Position
	Evaluation Evaluation
	Closed     bool
}

// Result summarizes one monitor cycle.
type Result struct {
	Expired  int
	Stale    int // stale rows left OPEN in read-only mode
	Closed   int
	Waiting  int
	Failed   int
	Spot     float64 // 0 when the underlying was not quoted
	Statuses []PositionStatus
}

// Monitor runs the exit state machine over the ledger's OPEN rows. It is
// driven by a single loop and is not meant to run cycles concurrently.
type Monitor struct {
	ledger   storage.Interface
	streamer marketdata.Streamer
	notifier notify.Notifier
	log      *logrus.Logger
	now      func() time.Time
	cfg      Config
}

// New creates a monitor.
func New(ledger storage.Interface, streamer marketdata.Streamer, notifier notify.Notifier, log *logrus.Logger, cfg Config) *Monitor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultQuoteTimeout
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Monitor{
		ledger:   ledger,
		streamer: streamer,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		cfg:      cfg,
	}
}

// SetClock replaces the wall clock, for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// ExpireStale reloads the ledger and force-expires OPEN rows entered before
// the current exchange date. It needs no market data.
func (m *Monitor) ExpireStale(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := m.ledger.Load(); err != nil {
		return 0, fmt.Errorf("reloading ledger: %w", err)
	}
	expired, _ := m.expireStale(m.now().In(m.cfg.Location))
	return expired, nil
}

// CheckOpenPositions runs one full cycle: the stale check, then a single
// merged quote collection for every open leg and the underlying, then the
// profit-target and time-exit checks for each position. Positions with any
// leg unquoted are skipped until a later cycle.
func (m *Monitor) CheckOpenPositions(ctx context.Context) (Result, error) {
	var res Result
	now := m.now().In(m.cfg.Location)

	if err := m.ledger.Load(); err != nil {
		return res, fmt.Errorf("reloading ledger: %w", err)
	}
	var stale []PositionStatus
	res.Expired, stale = m.expireStale(now)
	res.Stale = len(stale)
	res.Statuses = append(res.Statuses, stale...)

	open := withoutRows(m.ledger.OpenPositions(), stale)
	if len(open) == 0 {
		if res.Stale == 0 {
			m.log.Debug("No active trades")
		}
		return res, nil
	}

	snap, err := marketdata.Collect(ctx, m.streamer, m.quoteRequest(open))
	if err != nil {
		return res, fmt.Errorf("collecting quotes: %w", err)
	}
	m.log.Debugf("Collected %d market entries for %d open position(s)", snap.Len(), len(open))
	m.logMarket(snap, &res)

	for _, op := range open {
		ev := Evaluate(op.Position, snap, now, m.cutoff(op.Strategy))
		status := PositionStatus{Row: op.Row, Position: op.Position, Evaluation: ev}
		m.logStatus(op, ev)

		switch {
		case ev.Decision == DecisionWaitingForData:
			res.Waiting++
		case ev.Decision.Closes() && m.cfg.ReadOnly:
			m.positionLog(op).Infof("%s reached (read-only)", ev.Decision.Reason())
		case ev.Decision.Closes():
			if err := m.close(op, ev, now); err != nil {
				res.Failed++
			} else {
				status.Closed = true
				res.Closed++
			}
		}
		res.Statuses = append(res.Statuses, status)
	}

	if res.Closed > 0 {
		m.log.Infof("Closed %d trade(s)", res.Closed)
	}
	return res, nil
}

func (m *Monitor) quoteRequest(open []storage.OpenPosition) marketdata.Request {
	symbols := make([]string, 0, len(open)*4+1)
	for _, op := range open {
		symbols = append(symbols, op.LegSymbols()...)
	}
	subs := []marketdata.Subscription{{Kind: marketdata.KindQuote, Symbols: symbols}}
	if m.cfg.Underlying != "" {
		subs[0].Symbols = append(subs[0].Symbols, m.cfg.Underlying)
		subs = append(subs, marketdata.Subscription{Kind: marketdata.KindSummary, Symbols: []string{m.cfg.Underlying}})
	}
	return marketdata.Request{Subscriptions: subs, Timeout: m.cfg.QuoteTimeout}
}

func (m *Monitor) cutoff(strategyName string) *models.Clock {
	c, ok := m.cfg.TimeExits[strings.TrimSpace(strategyName)]
	if !ok {
		return nil
	}
	return &c
}

func (m *Monitor) close(op storage.OpenPosition, ev Evaluation, now time.Time) error {
	reason := ev.Decision.Reason()
	note := fmt.Sprintf("Closed at Debit: %.2f", ev.Debit)
	if ev.Decision == DecisionTimeExit {
		note = fmt.Sprintf("Time Exit %s | %s", m.cutoff(op.Strategy), note)
	}
	exit := models.Exit{
		Status: models.StatusClosed,
		Reason: reason,
		Time:   now,
		PL:     ev.RealizedPL(),
		Note:   note,
	}
	return m.applyExit(op, exit, ev.Debit)
}

// expireStale force-expires OPEN rows entered before today, valued at the
// spread's worst case. That figure is an estimate: the real settlement of a
// missed session is unknown here, and the note says so. In read-only mode
// nothing is written and the stale rows are returned with their estimate.
func (m *Monitor) expireStale(now time.Time) (int, []PositionStatus) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.cfg.Location)
	expired := 0
	var stale []PositionStatus
	for _, op := range m.ledger.OpenPositions() {
		entry, err := op.EntryDay(m.cfg.Location)
		if err != nil {
			m.positionLog(op).Errorf("Cannot check staleness: %v", err)
			continue
		}
		if !entry.Before(today) {
			continue
		}
		strikes, err := op.Strikes()
		if err != nil {
			m.positionLog(op).Errorf("Cannot value stale position: %v", err)
			continue
		}
		debit := strategy.WorstCaseDebit(strikes)
		pl := util.RoundCents(op.Credit() - debit)
		if m.cfg.ReadOnly {
			m.positionLog(op).Infof("Stale since %s, worst-case estimate %.2f (read-only)", op.Date, pl)
			stale = append(stale, PositionStatus{
				Row:      op.Row,
				Position: op.Position,
				Evaluation: Evaluation{
					Debit:    debit,
					PL:       pl,
					Target:   float64(op.ProfitTarget),
					Decision: DecisionStale,
				},
			})
			continue
		}
		exit := models.Exit{
			Status: models.StatusExpired,
			Reason: models.ReasonStale,
			Time:   now,
			PL:     pl,
			Note:   fmt.Sprintf("Stale: unsettled since %s, worst-case estimate %.2f", op.Date, pl),
		}
		if err := m.applyExit(op, exit, debit); err == nil {
			expired++
		}
	}
	return expired, stale
}

func withoutRows(open []storage.OpenPosition, skip []PositionStatus) []storage.OpenPosition {
	if len(skip) == 0 {
		return open
	}
	rows := make(map[int]bool, len(skip))
	for _, st := range skip {
		rows[st.Row] = true
	}
	kept := open[:0:0]
	for _, op := range open {
		if !rows[op.Row] {
			kept = append(kept, op)
		}
	}
	return kept
}

func (m *Monitor) applyExit(op storage.OpenPosition, exit models.Exit, debit float64) error {
	entry := m.positionLog(op).WithFields(logrus.Fields{
		"status": exit.Status,
		"reason": exit.Reason,
		"pl":     exit.PL,
	})
	if err := m.ledger.ApplyExit(op.Row, exit); err != nil {
		if errors.Is(err, storage.ErrNotOpen) {
			entry.Warnf("Position already closed: %v", err)
		} else {
			entry.Errorf("Failed to persist exit: %v", err)
		}
		return err
	}
	entry.Infof("%s: debit %.2f, P/L %.2f", exit.Reason, debit, exit.PL)

	m.notifier.PositionClosed(notify.ClosedEvent{
		Time:       exit.Time,
		Strategy:   op.Strategy,
		StrategyID: op.StrategyID,
		Status:     exit.Status,
		Reason:     exit.Reason,
		Credit:     op.Credit(),
		Debit:      util.RoundCents(debit),
		PL:         exit.PL,
		Note:       exit.Note,
	})
	return nil
}

func (m *Monitor) positionLog(op storage.OpenPosition) *logrus.Entry {
	return m.log.WithFields(logrus.Fields{
		"row":         op.Row,
		"strategy":    op.Strategy,
		"strategy_id": op.StrategyID,
	})
}

func (m *Monitor) logMarket(snap *marketdata.Snapshot, res *Result) {
	if m.cfg.Underlying == "" {
		return
	}
	spot, ok := snap.Mark(m.cfg.Underlying)
	if !ok {
		return
	}
	res.Spot = spot
	change := ""
	if sum, ok := snap.Summary(m.cfg.Underlying); ok && sum.PrevClose > 0 {
		diff := spot - sum.PrevClose
		change = fmt.Sprintf(" (%+.2f / %+.2f%%)", diff, diff/sum.PrevClose*100)
	}
	m.log.Infof("MARKET: %s %.2f%s", m.cfg.Underlying, spot, change)
}

func (m *Monitor) logStatus(op storage.OpenPosition, ev Evaluation) {
	entry := m.positionLog(op)
	if ev.Decision == DecisionWaitingForData {
		entry.Debugf("Waiting for data: %d leg(s) unquoted", len(ev.Missing))
		return
	}
	entry.Infof("%s: credit=%.2f debit=%.2f P/L=%.2f target=%.2f IVR=%.2f",
		Describe(op.Position), op.Credit(), ev.Debit, ev.PL, ev.Target, float64(op.IVRank))
}

// Describe renders a compact strike summary such as "SPX IC 6100/6120C 6000/5980P".
func Describe(pos models.Position) string {
	s, err := pos.Strikes()
	if err != nil {
		return fmt.Sprintf("%s %s", pos.Symbol, strings.Join(pos.LegSymbols(), "/"))
	}
	kind := "IC"
	if s.ShortCall == s.ShortPut {
		kind = "IF"
	}
	return fmt.Sprintf("%s %s %g/%gC %g/%gP", pos.Symbol, kind, s.ShortCall, s.LongCall, s.ShortPut, s.LongPut)
}

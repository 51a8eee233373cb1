package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/dashboard"
	"github.com/eddiefleurent/scranton_condor/internal/mock"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/monitor"
	"github.com/eddiefleurent/scranton_condor/internal/notify"
	"github.com/eddiefleurent/scranton_condor/internal/report"
	"github.com/eddiefleurent/scranton_condor/internal/retry"
	"github.com/eddiefleurent/scranton_condor/internal/settlement"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// Bot wires the lifecycle components around one ledger and one broker.
type Bot struct {
	config      *config.Config
	broker      broker.Broker
	retryClient *retry.Client
	storage     storage.Interface
	selector    *strategy.Selector
	monitor     *monitor.Monitor
	settler     *settlement.Calculator
	notifier    notify.Notifier
	definitions []strategy.Definition
	entryTimes  []models.Clock
	logger      *logrus.Logger
	loc         *time.Location
	now         func() time.Time
	day         *DayContext
}

// BotOptions alter how a Bot is assembled.
type BotOptions struct {
	ReadOnly    bool
	ManualPrice float64
}

func newBot(cfg *config.Config, b broker.Broker, store storage.Interface, notifier notify.Notifier, logger *logrus.Logger, opts BotOptions) (*Bot, error) {
	if !cfg.IsPaperTrading() {
		return nil, fmt.Errorf("environment mode %q is not supported: orders are never routed, only paper fills are recorded", cfg.Environment.Mode)
	}
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	retryCfg := retry.DefaultConfig
	if cfg.Retry.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Retry.MaxRetries
	}
	retryCfg.InitialBackoff, retryCfg.MaxBackoff = cfg.RetryBackoff(retryCfg.InitialBackoff, retryCfg.MaxBackoff)

	bot := &Bot{
		config:      cfg,
		broker:      b,
		retryClient: retry.NewClient(b, logger, retryCfg),
		storage:     store,
		notifier:    notifier,
		definitions: defs,
		entryTimes:  cfg.EntryTimes(),
		logger:      logger,
		loc:         cfg.Location(),
		now:         time.Now,
	}
	bot.day = NewDayContext(bot.now().In(bot.loc))

	bot.selector = strategy.NewSelector(b, strategy.SelectorConfig{
		GreeksTimeout:  cfg.GreeksTimeout(),
		GreeksCoverage: cfg.MarketData.GreeksCoverage,
		QuoteTimeout:   cfg.QuoteTimeout(),
	}, logger)

	bot.monitor = monitor.New(store, b, notifier, logger, monitor.Config{
		Underlying:   cfg.Trading.Underlying,
		Location:     bot.loc,
		QuoteTimeout: cfg.QuoteTimeout(),
		TimeExits:    cfg.TimeExits(),
		ReadOnly:     opts.ReadOnly,
	})

	var prices settlement.PriceSource = dayCachedPrices{
		source: settlement.StreamPriceSource{Streamer: b, Timeout: cfg.SpotTimeout()},
		day:    func() *DayContext { return bot.day },
	}
	if opts.ManualPrice != 0 {
		prices = settlement.StaticPriceSource(opts.ManualPrice)
	}
	bot.settler = settlement.NewCalculator(store, prices, notifier, logger, cfg.Trading.Underlying)
	if opts.ManualPrice != 0 {
		bot.settler.NoteSuffix = " (manual)"
	}
	return bot, nil
}

// SetClock replaces the wall clock of the bot and its components, for tests.
func (b *Bot) SetClock(now func() time.Time) {
	b.now = now
	b.monitor.SetClock(now)
	b.settler.SetClock(now)
	b.day = NewDayContext(now().In(b.loc))
}

// Run drives Tick every poll interval until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	interval := b.config.GetPollInterval()
	b.logger.WithFields(logrus.Fields{
		"interval":    interval,
		"strategies":  len(b.definitions),
		"entry_times": b.config.Schedule.EntryTimes,
	}).Info("Bot starting main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	b.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

type cliOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "scranton_condor",
		Short:         "Paper-trade 0DTE index credit spreads",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoop(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the entry, monitor and settlement loop",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLoop(cmd.Context(), opts)
			},
		},
		newMonitorCmd(opts),
		newSettleCmd(opts),
		&cobra.Command{
			Use:   "gap",
			Short: "Print today's overnight gap decision",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runGap(cmd.Context(), opts, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "report",
			Short: "Print performance tables from the ledger",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReport(opts, cmd.OutOrStdout())
			},
		},
	)
	return root
}

func newMonitorCmd(opts *cliOptions) *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run one monitor pass over open positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), opts, readOnly, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Evaluate and report without closing positions")
	return cmd
}

func newSettleCmd(opts *cliOptions) *cobra.Command {
	var price float64
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle every open position at intrinsic value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("price") && price <= 0 {
				return fmt.Errorf("--price must be > 0")
			}
			return runSettle(cmd.Context(), opts, price)
		},
	}
	cmd.Flags().Float64Var(&price, "price", 0, "Manual settlement price of the underlying")
	return cmd
}

// setup loads config and builds the bot with its live collaborators. The
// returned cleanup flushes notifications and closes the log file.
func setup(ctx context.Context, opts *cliOptions, botOpts BotOptions) (*Bot, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Environment)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	b := newBroker(ctx, cfg, logger)

	sinks := []notify.Sink{notify.LogSink{Log: logger}}
	if cfg.Notifications.DiscordWebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.Notifications.DiscordWebhookURL))
	}
	bus, err := notify.NewBus(logger, sinks...)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	bot, err := newBot(cfg, b, store, bus, logger, botOpts)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	cleanup := func() {
		bus.Wait()
		closeLog()
	}
	return bot, cleanup, nil
}

func newBroker(ctx context.Context, cfg *config.Config, logger *logrus.Logger) broker.Broker {
	var b broker.Broker
	switch cfg.Broker.Provider {
	case "mock":
		logger.Info("Using simulated market data provider")
		b = mock.NewDataProvider(cfg.Trading.Underlying, cfg.Location())
	default:
		b = broker.NewTastytradeClient(ctx, broker.TastytradeConfig{
			BaseURL:      cfg.Broker.BaseURL,
			ClientSecret: cfg.Broker.ClientSecret,
			RefreshToken: cfg.Broker.RefreshToken,
			Timeout:      cfg.BrokerTimeout(),
		}, logger)
	}
	return broker.NewCircuitBreakerBroker(b, logger)
}

func runLoop(parent context.Context, opts *cliOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, cleanup, err := setup(ctx, opts, BotOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	bot.logger.Infof("Starting 0DTE paper trader for %s (%s mode)", bot.config.Trading.Underlying, bot.config.Environment.Mode)

	g, gctx := errgroup.WithContext(ctx)
	if bot.config.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Addr:      bot.config.Dashboard.Addr,
			AuthToken: bot.config.Dashboard.AuthToken,
		}, bot.storage, bot.logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return bot.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	bot.logger.Info("Bot stopped successfully")
	return nil
}

func runMonitor(ctx context.Context, opts *cliOptions, readOnly bool, out io.Writer) error {
	bot, cleanup, err := setup(ctx, opts, BotOptions{ReadOnly: readOnly})
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := bot.monitor.CheckOpenPositions(ctx)
	if err != nil {
		return err
	}
	writeMonitorResult(out, res)
	return nil
}

func writeMonitorResult(out io.Writer, res monitor.Result) {
	fmt.Fprintf(out, "Expired stale: %d  Closed: %d  Waiting: %d  Failed: %d\n",
		res.Expired, res.Closed, res.Waiting, res.Failed)
	if res.Stale > 0 {
		fmt.Fprintf(out, "Stale (not expired, read-only): %d\n", res.Stale)
	}
	if len(res.Statuses) == 0 {
		fmt.Fprintln(out, "No open positions.")
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Row", "Strategy", "Spread", "Credit", "Debit", "P/L", "Target", "Decision"})
	for _, st := range res.Statuses {
		ev := st.Evaluation
		debit, pl := "-", "-"
		if ev.Decision != monitor.DecisionWaitingForData {
			debit = fmt.Sprintf("%.2f", ev.Debit)
			pl = fmt.Sprintf("%.2f", ev.PL)
		}
		table.Append([]string{
			fmt.Sprintf("%d", st.Row),
			st.Position.StrategyID,
			monitor.Describe(st.Position),
			fmt.Sprintf("%.2f", st.Position.Credit()),
			debit,
			pl,
			fmt.Sprintf("%.2f", ev.Target),
			string(ev.Decision),
		})
	}
	table.Render()
}

func runSettle(ctx context.Context, opts *cliOptions, price float64) error {
	bot, cleanup, err := setup(ctx, opts, BotOptions{ManualPrice: price})
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := bot.settler.SettleOpenPositions(ctx)
	if err != nil {
		return err
	}
	bot.logger.Infof("Settled %d open position(s)", n)
	return nil
}

func runGap(ctx context.Context, opts *cliOptions, out io.Writer) error {
	bot, cleanup, err := setup(ctx, opts, BotOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	d := bot.gapDecision(ctx)
	if d.Gap != nil {
		fmt.Fprintf(out, "Previous close: %.2f  Open: %.2f  Gap: %+.2f%% (%s)\n",
			d.Gap.PrevClose, d.Gap.DayOpen, d.Gap.Pct, d.Gap.Class)
	}
	verdict := "SKIP"
	if d.Trade {
		verdict = "TRADE"
	}
	fmt.Fprintf(out, "Gap filter decision: %s - %s\n", verdict, d.Reason)
	return nil
}

func runReport(opts *cliOptions, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	return report.Write(out, store.Positions())
}

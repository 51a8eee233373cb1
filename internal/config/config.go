// Package config provides configuration management for the trading bot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // exchange-zone DST rules without a system zoneinfo

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// Defaults applied to unset fields.
const (
	DefaultTimezone       = "America/New_York"
	DefaultPollInterval   = 10 * time.Second
	DefaultQuoteTimeout   = 5 * time.Second
	DefaultGreeksTimeout  = 10 * time.Second
	DefaultSpotTimeout    = 3 * time.Second
	DefaultGreeksCoverage = 0.9
	DefaultLedgerPath     = "paper_trades.csv"
	DefaultUnderlying     = "SPX"
)

var (
	defaultMarketOpen  = models.MustParseClock("09:30")
	defaultMarketClose = models.MustParseClock("16:00")
	defaultEntryTimes  = []string{"09:45", "10:00", "10:30"}
)

// Config represents the complete application configuration.
type Config struct {
	Environment   EnvironmentConfig  `yaml:"environment"`
	Broker        BrokerConfig       `yaml:"broker"`
	Schedule      ScheduleConfig     `yaml:"schedule"`
	MarketData    MarketDataConfig   `yaml:"market_data"`
	Trading       TradingConfig      `yaml:"trading"`
	Strategies    []StrategyConfig   `yaml:"strategies"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Dashboard     DashboardConfig    `yaml:"dashboard"`
	Retry         RetryConfig        `yaml:"retry"`

	location *time.Location
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper (the only supported mode)
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	LogFile  string `yaml:"log_file"`  // optional, in addition to stdout
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider     string `yaml:"provider"` // tastytrade | mock
	BaseURL      string `yaml:"base_url"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Timeout      string `yaml:"timeout"`
}

// ScheduleConfig defines the session clock and entry triggers.
type ScheduleConfig struct {
	Timezone     string   `yaml:"timezone"`      // e.g., "America/New_York"
	PollInterval string   `yaml:"poll_interval"` // e.g., "10s"
	MarketOpen   string   `yaml:"market_open"`   // "HH:MM"
	MarketClose  string   `yaml:"market_close"`  // "HH:MM"
	EntryTimes   []string `yaml:"entry_times"`   // "HH:MM" list
}

// MarketDataConfig bounds the snapshot collections.
type MarketDataConfig struct {
	QuoteTimeout   string  `yaml:"quote_timeout"`
	GreeksTimeout  string  `yaml:"greeks_timeout"`
	SpotTimeout    string  `yaml:"spot_timeout"`
	GreeksCoverage float64 `yaml:"greeks_coverage"`
}

// TradingConfig names the traded index.
type TradingConfig struct {
	Underlying string `yaml:"underlying"`
}

// StrategyConfig is one strategy entry. Times are "HH:MM" in the schedule's
// timezone.
type StrategyConfig struct {
	Name            string   `yaml:"name"`
	Code            string   `yaml:"code"`
	Type            string   `yaml:"type"`
	TargetDelta     float64  `yaml:"target_delta"`
	ProfitTargetPct float64  `yaml:"profit_target_pct"`
	WingWidth       float64  `yaml:"wing_width"`
	AllowedTimes    []string `yaml:"allowed_times"`
	GapFilter       bool     `yaml:"gap_filter"`
	TimeExit        string   `yaml:"time_exit"`

	MoveThreshold   *float64 `yaml:"move_threshold"`
	CondorDelta     float64  `yaml:"condor_delta"`
	CondorWingWidth float64  `yaml:"condor_wing_width"`
	FlyDelta        float64  `yaml:"fly_delta"`
	FlyWingWidth    float64  `yaml:"fly_wing_width"`
}

// StorageConfig defines storage settings for the ledger.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig configures outbound notifications.
type NotificationConfig struct {
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// DashboardConfig configures the read-only ledger API.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// RetryConfig bounds retries of chain and IV-rank lookups.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// Load reads and parses the configuration file from the specified path.
// Variables from a .env file next to the working directory are loaded first
// so ${VAR} references in the file can use them; a missing .env is fine.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML after environment expansion, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "paper"
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "tastytrade"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Schedule.MarketOpen == "" {
		c.Schedule.MarketOpen = defaultMarketOpen.String()
	}
	if c.Schedule.MarketClose == "" {
		c.Schedule.MarketClose = defaultMarketClose.String()
	}
	if len(c.Schedule.EntryTimes) == 0 {
		c.Schedule.EntryTimes = append([]string(nil), defaultEntryTimes...)
	}
	if c.MarketData.GreeksCoverage == 0 {
		c.MarketData.GreeksCoverage = DefaultGreeksCoverage
	}
	if c.Trading.Underlying == "" {
		c.Trading.Underlying = DefaultUnderlying
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultLedgerPath
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = ":8080"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if !c.IsPaperTrading() {
		return fmt.Errorf("environment.mode must be 'paper'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	// Broker validation
	switch c.Broker.Provider {
	case "mock":
	case "tastytrade":
		if c.Broker.ClientSecret == "" {
			return fmt.Errorf("broker.client_secret is required")
		}
		if c.Broker.RefreshToken == "" {
			return fmt.Errorf("broker.refresh_token is required")
		}
	default:
		return fmt.Errorf("broker.provider must be 'tastytrade' or 'mock'")
	}
	if err := checkDuration("broker.timeout", c.Broker.Timeout); err != nil {
		return err
	}

	// Schedule validation
	loc, err := loadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}
	c.location = loc
	if err := checkDuration("schedule.poll_interval", c.Schedule.PollInterval); err != nil {
		return err
	}
	open, err1 := models.ParseClock(c.Schedule.MarketOpen)
	closeAt, err2 := models.ParseClock(c.Schedule.MarketClose)
	if err1 != nil || err2 != nil || open.Minutes() >= closeAt.Minutes() {
		return fmt.Errorf("schedule market window invalid (open/close parse/order)")
	}
	for i, s := range c.Schedule.EntryTimes {
		t, err := models.ParseClock(s)
		if err != nil {
			return fmt.Errorf("schedule.entry_times[%d]: %w", i, err)
		}
		if t.Minutes() < open.Minutes() || t.Minutes() >= closeAt.Minutes() {
			return fmt.Errorf("schedule.entry_times[%d] (%s) must be within the market window", i, s)
		}
	}

	// Market data validation
	for path, v := range map[string]string{
		"market_data.quote_timeout":  c.MarketData.QuoteTimeout,
		"market_data.greeks_timeout": c.MarketData.GreeksTimeout,
		"market_data.spot_timeout":   c.MarketData.SpotTimeout,
	} {
		if err := checkDuration(path, v); err != nil {
			return err
		}
	}
	if c.MarketData.GreeksCoverage <= 0 || c.MarketData.GreeksCoverage > 1 {
		return fmt.Errorf("market_data.greeks_coverage must be in (0, 1]")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if err := checkDuration("retry.initial_backoff", c.Retry.InitialBackoff); err != nil {
		return err
	}
	if err := checkDuration("retry.max_backoff", c.Retry.MaxBackoff); err != nil {
		return err
	}

	// Strategy validation
	if _, err := c.Definitions(); err != nil {
		return err
	}

	// Dashboard validation
	if c.Dashboard.Enabled && c.Dashboard.AuthToken == "" {
		return fmt.Errorf("dashboard.auth_token is required when the dashboard is enabled")
	}

	return nil
}

func checkDuration(path, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", path, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", path)
	}
	return nil
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// loadLocation resolves tz against the embedded zone database, so a minimal
// container without zoneinfo still gets daylight saving right.
func loadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// Definitions converts the configured strategies. An empty list yields the
// stock roster.
func (c *Config) Definitions() ([]strategy.Definition, error) {
	if len(c.Strategies) == 0 {
		return strategy.DefaultDefinitions(), nil
	}

	defs := make([]strategy.Definition, 0, len(c.Strategies))
	names := make(map[string]bool, len(c.Strategies))
	for i, sc := range c.Strategies {
		path := fmt.Sprintf("strategies[%d]", i)
		d, err := sc.definition()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if names[d.Name] {
			return nil, fmt.Errorf("%s: duplicate strategy name %q", path, d.Name)
		}
		names[d.Name] = true
		defs = append(defs, d)
	}
	return defs, nil
}

func (sc StrategyConfig) definition() (strategy.Definition, error) {
	typ, err := strategy.ParseType(sc.Type)
	if err != nil {
		return strategy.Definition{}, fmt.Errorf("type: %w", err)
	}
	d := strategy.Definition{
		Name:            strings.TrimSpace(sc.Name),
		Code:            strings.TrimSpace(sc.Code),
		Type:            typ,
		TargetDelta:     sc.TargetDelta,
		ProfitTargetPct: sc.ProfitTargetPct,
		WingWidth:       sc.WingWidth,
		GapFilter:       sc.GapFilter,
		MoveThreshold:   strategy.DefaultMoveThreshold,
		CondorDelta:     sc.CondorDelta,
		CondorWingWidth: sc.CondorWingWidth,
		FlyDelta:        sc.FlyDelta,
		FlyWingWidth:    sc.FlyWingWidth,
	}
	if sc.MoveThreshold != nil {
		d.MoveThreshold = *sc.MoveThreshold
	}
	for j, s := range sc.AllowedTimes {
		t, err := models.ParseClock(s)
		if err != nil {
			return strategy.Definition{}, fmt.Errorf("allowed_times[%d]: %w", j, err)
		}
		d.AllowedTimes = append(d.AllowedTimes, t)
	}
	if sc.TimeExit != "" {
		t, err := models.ParseClock(sc.TimeExit)
		if err != nil {
			return strategy.Definition{}, fmt.Errorf("time_exit: %w", err)
		}
		d.TimeExit = &t
	}
	return d, nil
}

// Location returns the exchange timezone.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, err := loadLocation(c.Schedule.Timezone)
	if err != nil {
		// Unvalidated config; the default zone is always in the embedded database.
		loc, _ = loadLocation(DefaultTimezone)
	}
	return loc
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetPollInterval returns the configured poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return durationOr(c.Schedule.PollInterval, DefaultPollInterval)
}

// QuoteTimeout bounds monitor quote collections.
func (c *Config) QuoteTimeout() time.Duration {
	return durationOr(c.MarketData.QuoteTimeout, DefaultQuoteTimeout)
}

// GreeksTimeout bounds greeks collections at entry.
func (c *Config) GreeksTimeout() time.Duration {
	return durationOr(c.MarketData.GreeksTimeout, DefaultGreeksTimeout)
}

// SpotTimeout bounds single-quote lookups of the underlying.
func (c *Config) SpotTimeout() time.Duration {
	return durationOr(c.MarketData.SpotTimeout, DefaultSpotTimeout)
}

// BrokerTimeout bounds REST calls.
func (c *Config) BrokerTimeout() time.Duration {
	return durationOr(c.Broker.Timeout, 30*time.Second)
}

// MarketOpen returns the session open.
func (c *Config) MarketOpen() models.Clock {
	t, err := models.ParseClock(c.Schedule.MarketOpen)
	if err != nil {
		return defaultMarketOpen
	}
	return t
}

// MarketClose returns the session close.
func (c *Config) MarketClose() models.Clock {
	t, err := models.ParseClock(c.Schedule.MarketClose)
	if err != nil {
		return defaultMarketClose
	}
	return t
}

// EntryTimes returns the parsed entry triggers.
func (c *Config) EntryTimes() []models.Clock {
	out := make([]models.Clock, 0, len(c.Schedule.EntryTimes))
	for _, s := range c.Schedule.EntryTimes {
		if t, err := models.ParseClock(s); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Session classifies now against the market window.
type Session int

const (
	PreMarket Session = iota
	MarketOpen
	AfterClose
)

func (s Session) String() string {
	switch s {
	case PreMarket:
		return "pre-market"
	case MarketOpen:
		return "open"
	default:
		return "closed"
	}
}

// SessionAt reports where now falls in the trading day. Weekends are
// treated as after the close.
func (c *Config) SessionAt(now time.Time) Session {
	local := now.In(c.Location())
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return AfterClose
	}
	switch {
	case c.MarketClose().Reached(local):
		return AfterClose
	case c.MarketOpen().Reached(local):
		return MarketOpen
	default:
		return PreMarket
	}
}

// TimeExits maps strategy names to their time cutoffs.
func (c *Config) TimeExits() map[string]models.Clock {
	defs, err := c.Definitions()
	if err != nil {
		return nil
	}
	out := make(map[string]models.Clock)
	for _, d := range defs {
		if d.TimeExit != nil {
			out[d.Name] = *d.TimeExit
		}
	}
	return out
}

// RetryBackoff returns the configured backoff bounds, falling back to the
// given defaults.
func (c *Config) RetryBackoff(initial, maxBackoff time.Duration) (time.Duration, time.Duration) {
	return durationOr(c.Retry.InitialBackoff, initial), durationOr(c.Retry.MaxBackoff, maxBackoff)
}

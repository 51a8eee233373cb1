package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

func TestLoad(t *testing.T) {
	t.Setenv("TASTY_CLIENT_SECRET", "secret")
	t.Setenv("TASTY_REFRESH_TOKEN", "refresh")

	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}

	assert.Equal(t, "secret", cfg.Broker.ClientSecret)
	assert.Equal(t, "SPX", cfg.Trading.Underlying)
	assert.Equal(t, 10*time.Second, cfg.GetPollInterval())

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 5)
	assert.Equal(t, strategy.Dynamic, defs[4].Type)

	exits := cfg.TimeExits()
	assert.Equal(t, map[string]models.Clock{"30 Delta": models.MustParseClock("13:00")}, exits)
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "broker:\n  provider: mock\n  api_key: nope\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("broker:\n  provider: mock\n"))
	require.NoError(t, err)

	assert.True(t, cfg.IsPaperTrading())
	assert.Equal(t, DefaultLedgerPath, cfg.Storage.Path)
	assert.Equal(t, DefaultQuoteTimeout, cfg.QuoteTimeout())
	assert.Equal(t, DefaultGreeksTimeout, cfg.GreeksTimeout())
	assert.Equal(t, DefaultSpotTimeout, cfg.SpotTimeout())
	assert.Equal(t, []models.Clock{
		models.MustParseClock("09:45"),
		models.MustParseClock("10:00"),
		models.MustParseClock("10:30"),
	}, cfg.EntryTimes())

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	assert.Len(t, defs, len(strategy.DefaultDefinitions()))
	assert.Contains(t, cfg.TimeExits(), "30 Delta")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Parse([]byte("broker:\n  provider: mock\n"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"live mode rejected", func(c *Config) { c.Environment.Mode = "live" }, "environment.mode"},
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "loud" }, "environment.log_level"},
		{"unknown provider", func(c *Config) { c.Broker.Provider = "tradier" }, "broker.provider"},
		{"tastytrade needs secret", func(c *Config) { c.Broker.Provider = "tastytrade" }, "broker.client_secret"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"bad poll interval", func(c *Config) { c.Schedule.PollInterval = "soon" }, "schedule.poll_interval"},
		{"negative timeout", func(c *Config) { c.MarketData.QuoteTimeout = "-1s" }, "market_data.quote_timeout"},
		{"window inverted", func(c *Config) { c.Schedule.MarketOpen = "16:30" }, "market window"},
		{"entry outside window", func(c *Config) { c.Schedule.EntryTimes = []string{"08:00"} }, "schedule.entry_times[0]"},
		{"coverage above one", func(c *Config) { c.MarketData.GreeksCoverage = 1.5 }, "market_data.greeks_coverage"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"dashboard without token", func(c *Config) { c.Dashboard.Enabled = true }, "dashboard.auth_token"},
		{
			"bad strategy target",
			func(c *Config) {
				c.Strategies = []StrategyConfig{{Name: "x", Type: "iron_condor", TargetDelta: 0.2, ProfitTargetPct: 1.5}}
			},
			"strategies[0]: profit_target_pct",
		},
		{
			"duplicate strategy",
			func(c *Config) {
				sc := StrategyConfig{Name: "x", Code: "X", Type: "iron_condor", TargetDelta: 0.2, ProfitTargetPct: 0.25}
				c.Strategies = []StrategyConfig{sc, sc}
			},
			"duplicate strategy name",
		},
		{
			"bad time exit",
			func(c *Config) {
				c.Strategies = []StrategyConfig{{Name: "x", Type: "iron_fly", ProfitTargetPct: 0.1, TimeExit: "1pm"}}
			},
			"strategies[0]: time_exit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error message to contain '%s', got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestStrategyConfig_MoveThreshold(t *testing.T) {
	zero := 0.0
	cfg := &Config{Strategies: []StrategyConfig{
		{Name: "a", Type: "dynamic", ProfitTargetPct: 0.2, CondorDelta: 0.2, FlyDelta: 0.5},
		{Name: "b", Type: "dynamic", ProfitTargetPct: 0.2, CondorDelta: 0.2, FlyDelta: 0.5, MoveThreshold: &zero},
	}}

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultMoveThreshold, defs[0].MoveThreshold)
	assert.Equal(t, 0.0, defs[1].MoveThreshold)
}

func TestLocation_FollowsDaylightSaving(t *testing.T) {
	cfg, err := Parse([]byte("broker:\n  provider: mock\n"))
	require.NoError(t, err)
	loc := cfg.Location()

	_, winter := time.Date(2025, 12, 10, 15, 0, 0, 0, time.UTC).In(loc).Zone()
	_, summer := time.Date(2025, 7, 10, 15, 0, 0, 0, time.UTC).In(loc).Zone()
	assert.Equal(t, -5*60*60, winter)
	assert.Equal(t, -4*60*60, summer)

	// 13:45 UTC in July is the 09:45 entry time in New York.
	entry := time.Date(2025, 7, 10, 13, 45, 0, 0, time.UTC).In(loc)
	assert.Equal(t, 9, entry.Hour())
	assert.Equal(t, 45, entry.Minute())
}

func TestSessionAt(t *testing.T) {
	cfg, err := Parse([]byte("broker:\n  provider: mock\n"))
	require.NoError(t, err)
	loc := cfg.Location()

	tests := []struct {
		name string
		at   time.Time
		want Session
	}{
		{"before open", time.Date(2025, 12, 10, 9, 0, 0, 0, loc), PreMarket},
		{"at open", time.Date(2025, 12, 10, 9, 30, 0, 0, loc), MarketOpen},
		{"midday", time.Date(2025, 12, 10, 12, 15, 0, 0, loc), MarketOpen},
		{"at close", time.Date(2025, 12, 10, 16, 0, 0, 0, loc), AfterClose},
		{"saturday", time.Date(2025, 12, 13, 11, 0, 0, 0, loc), AfterClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.SessionAt(tt.at))
		})
	}
}

func TestRetryBackoff(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{InitialBackoff: "2s"}}
	initial, maxBackoff := cfg.RetryBackoff(time.Second, 30*time.Second)
	assert.Equal(t, 2*time.Second, initial)
	assert.Equal(t, 30*time.Second, maxBackoff)
}

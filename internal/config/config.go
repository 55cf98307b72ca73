package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/cashasset"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/fees"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/portfolio"
)

// DefaultPath is used when TPLUS_CONFIG is unset.
const DefaultPath = "config/tplus.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration of the backtester.
type Config struct {
	Storage   Storage     `yaml:"storage"`
	Server    Server      `yaml:"server"`
	Alpaca    Alpaca      `yaml:"alpaca"`
	Logging   Logging     `yaml:"logging"`
	Fetch     Fetch       `yaml:"fetch"`
	Execution Execution   `yaml:"execution"`
	Costs     fees.Config `yaml:"costs"`
	Portfolio Portfolio   `yaml:"portfolio"`
	Cash      Cash        `yaml:"cash"`
	Backtest  Backtest    `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and the endpoint of the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Fetch controls historical bar downloads.
type Fetch struct {
	Feed            string `yaml:"feed"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Execution mirrors execution.Config.
type Execution struct {
	OrderColumn     string  `yaml:"order_column"`
	UseNextInterval *bool   `yaml:"use_next_interval"`
	SpreadSource    string  `yaml:"spread_source"`
	FixedSpreadBps  float64 `yaml:"fixed_spread_bps"`
	LotSize         int     `yaml:"lot_size"`
	AllowShort      bool    `yaml:"allow_short"`
	ShortPolicy     string  `yaml:"short_policy"`
}

// Portfolio configures the account.
type Portfolio struct {
	InitialCash float64 `yaml:"initial_cash"`
	AllowShort  bool    `yaml:"allow_short"`
	ShortPolicy string  `yaml:"short_policy"`
	CashPolicy  string  `yaml:"cash_policy"`
	LotSize     int     `yaml:"lot_size"`
}

// Cash configures the synthetic cash asset.
type Cash struct {
	Enabled  bool   `yaml:"enabled"`
	Symbol   string `yaml:"symbol"`
	DayCount int    `yaml:"day_count"`
	RateFile string `yaml:"rate_file"`
}

// Backtest selects the strategy, universe and date range of a run.
type Backtest struct {
	Strategy        string             `yaml:"strategy"`
	Panel           string             `yaml:"panel"`
	Assets          []string           `yaml:"assets"`
	Start           string             `yaml:"start"`
	End             string             `yaml:"end"`
	Weights         map[string]float64 `yaml:"weights"`
	MaxPositionPct  float64            `yaml:"max_position_pct"`
	MaxDailyLossPct float64            `yaml:"max_daily_loss_pct"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// PathFromEnv returns $TPLUS_CONFIG or DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("TPLUS_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.Defaults()

	if err := cfg.Costs.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults fills every unset field with its documented default.
func (c *Config) Defaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Fetch.Feed == "" {
		c.Fetch.Feed = "sip"
	}
	if c.Fetch.BatchSize == 0 {
		c.Fetch.BatchSize = 100
	}
	if c.Fetch.RateLimitPerMin == 0 {
		c.Fetch.RateLimitPerMin = 200
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Execution.OrderColumn == "" {
		c.Execution.OrderColumn = execution.DefaultOrderColumn
	}
	if c.Execution.UseNextInterval == nil {
		on := true
		c.Execution.UseNextInterval = &on
	}
	if c.Execution.SpreadSource == "" {
		c.Execution.SpreadSource = string(execution.SpreadEstimate)
	}
	if c.Execution.LotSize == 0 {
		c.Execution.LotSize = execution.DefaultLotSize
	}
	if c.Execution.ShortPolicy == "" {
		c.Execution.ShortPolicy = string(execution.ShortIgnore)
	}
	if c.Portfolio.InitialCash == 0 {
		c.Portfolio.InitialCash = portfolio.DefaultInitialCash
	}
	if c.Portfolio.ShortPolicy == "" {
		c.Portfolio.ShortPolicy = string(portfolio.ShortIgnore)
	}
	if c.Portfolio.CashPolicy == "" {
		c.Portfolio.CashPolicy = string(portfolio.CashAllow)
	}
	if c.Cash.Symbol == "" {
		c.Cash.Symbol = cashasset.DefaultSymbol
	}
	if c.Cash.DayCount == 0 {
		c.Cash.DayCount = cashasset.DefaultDayCount
	}
	if c.Backtest.Strategy == "" {
		c.Backtest.Strategy = "equal-weight"
	}
	if c.Backtest.Panel == "" {
		c.Backtest.Panel = "default"
	}
}

// ExecutionConfig converts the execution section.
func (c *Config) ExecutionConfig() (execution.Config, error) {
	out := execution.DefaultConfig()
	out.OrderColumn = c.Execution.OrderColumn
	if c.Execution.UseNextInterval != nil {
		out.UseNextInterval = *c.Execution.UseNextInterval
	}
	switch s := execution.SpreadSource(c.Execution.SpreadSource); s {
	case execution.SpreadEstimate, execution.SpreadFixed, execution.SpreadNone:
		out.SpreadSource = s
	default:
		return out, fmt.Errorf("execution.spread_source: unknown value %q", c.Execution.SpreadSource)
	}
	switch p := execution.ShortPolicy(c.Execution.ShortPolicy); p {
	case execution.ShortIgnore, execution.ShortClip, execution.ShortReject:
		out.ShortPolicy = p
	default:
		return out, fmt.Errorf("execution.short_policy: unknown value %q", c.Execution.ShortPolicy)
	}
	out.FixedSpreadBps = c.Execution.FixedSpreadBps
	out.LotSize = c.Execution.LotSize
	out.AllowShort = c.Execution.AllowShort
	return out, nil
}

// PortfolioConfig converts the portfolio and costs sections.
func (c *Config) PortfolioConfig() (portfolio.Config, error) {
	sp, err := portfolio.ParseShortPolicy(c.Portfolio.ShortPolicy)
	if err != nil {
		return portfolio.Config{}, err
	}
	cp, err := portfolio.ParseCashPolicy(c.Portfolio.CashPolicy)
	if err != nil {
		return portfolio.Config{}, err
	}
	return portfolio.Config{
		InitialCash: c.Portfolio.InitialCash,
		AllowShort:  c.Portfolio.AllowShort,
		ShortPolicy: sp,
		CashPolicy:  cp,
		LotSize:     c.Portfolio.LotSize,
		Fees:        c.Costs,
	}, nil
}

// CashConfig converts the cash section.
func (c *Config) CashConfig() cashasset.Config {
	return cashasset.Config{Symbol: c.Cash.Symbol, DayCount: c.Cash.DayCount}
}

// DateRange parses backtest.start and backtest.end. Empty bounds yield the
// zero time.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Backtest.Start != "" {
		if start, err = time.Parse(domain.DateLayout, c.Backtest.Start); err != nil {
			return start, end, fmt.Errorf("backtest.start: %w", err)
		}
	}
	if c.Backtest.End != "" {
		if end, err = time.Parse(domain.DateLayout, c.Backtest.End); err != nil {
			return start, end, fmt.Errorf("backtest.end: %w", err)
		}
	}
	return start, end, nil
}

// GRPCAddr returns host:grpc_port.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("GRPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = port
		}
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/portfolio"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tplus.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "GRPC_PORT", "ALPACA_DATA_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/tplus/data"
  sqlite_path: "/tmp/tplus/runs.db"
server:
  host: "0.0.0.0"
  grpc_port: 9191
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "text"
fetch:
  batch_size: 50
  rate_limit_per_min: 100
execution:
  use_next_interval: false
  spread_source: fixed
  fixed_spread_bps: 10
  short_policy: clip
costs:
  commission_bps: 5
  min_fee_abs: 1
  use_vol_slippage: true
  k_bps_per_sigma: 20
portfolio:
  initial_cash: 250000
  cash_policy: reject
  lot_size: 1
cash:
  enabled: true
  symbol: "RF"
  day_count: 365
  rate_file: "rates.yaml"
backtest:
  strategy: fixed
  assets: [SPY, TLT]
  start: "2020-01-02"
  end: "2020-12-31"
  weights: {SPY: 0.6, TLT: 0.4}
  max_position_pct: 0.7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage / Server --
	if cfg.Storage.DataDir != "/tmp/tplus/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tplus/data")
	}
	if cfg.GRPCAddr() != "0.0.0.0:9191" {
		t.Errorf("GRPCAddr() = %q, want %q", cfg.GRPCAddr(), "0.0.0.0:9191")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Fetch --
	if cfg.Fetch.BatchSize != 50 || cfg.Fetch.Feed != "sip" {
		t.Errorf("Fetch = %+v, want batch 50 feed sip", cfg.Fetch)
	}

	// -- Execution --
	ec, err := cfg.ExecutionConfig()
	if err != nil {
		t.Fatalf("ExecutionConfig: %v", err)
	}
	if ec.UseNextInterval {
		t.Error("UseNextInterval = true, want false")
	}
	if ec.SpreadSource != execution.SpreadFixed || ec.FixedSpreadBps != 10 {
		t.Errorf("spread = %s/%v, want fixed/10", ec.SpreadSource, ec.FixedSpreadBps)
	}
	if ec.ShortPolicy != execution.ShortClip {
		t.Errorf("ShortPolicy = %s, want clip", ec.ShortPolicy)
	}
	if ec.OrderColumn != execution.DefaultOrderColumn {
		t.Errorf("OrderColumn = %q, want %q", ec.OrderColumn, execution.DefaultOrderColumn)
	}

	// -- Portfolio / Costs --
	pc, err := cfg.PortfolioConfig()
	if err != nil {
		t.Fatalf("PortfolioConfig: %v", err)
	}
	if pc.InitialCash != 250000 || pc.CashPolicy != portfolio.CashReject || pc.LotSize != 1 {
		t.Errorf("PortfolioConfig = %+v", pc)
	}
	if pc.Fees.CommissionBps != 5 || pc.Fees.MinFeeAbs != 1 || !pc.Fees.UseVolSlippage || pc.Fees.KBpsPerSigma != 20 {
		t.Errorf("Fees = %+v", pc.Fees)
	}

	// -- Cash --
	cc := cfg.CashConfig()
	if cc.Symbol != "RF" || cc.DayCount != 365 {
		t.Errorf("CashConfig = %+v, want RF/365", cc)
	}

	// -- Backtest --
	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if start.Format("2006-01-02") != "2020-01-02" || end.Format("2006-01-02") != "2020-12-31" {
		t.Errorf("DateRange = %v..%v", start, end)
	}
	if cfg.Backtest.Weights["SPY"] != 0.6 || len(cfg.Backtest.Assets) != 2 {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "storage:\n  data_dir: /d\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	ec, err := cfg.ExecutionConfig()
	if err != nil {
		t.Fatalf("ExecutionConfig: %v", err)
	}
	if !ec.UseNextInterval {
		t.Error("UseNextInterval default = false, want true")
	}
	if ec.SpreadSource != execution.SpreadEstimate || ec.LotSize != 1 {
		t.Errorf("execution defaults = %+v", ec)
	}
	if cfg.Portfolio.InitialCash != portfolio.DefaultInitialCash {
		t.Errorf("InitialCash = %v, want %v", cfg.Portfolio.InitialCash, portfolio.DefaultInitialCash)
	}
	if cfg.Cash.Symbol != "CASH" || cfg.Cash.DayCount != 360 {
		t.Errorf("Cash defaults = %+v, want CASH/360", cfg.Cash)
	}
	if cfg.Server.GRPCPort != 9090 {
		t.Errorf("GRPCPort = %d, want 9090", cfg.Server.GRPCPort)
	}
	if cfg.Backtest.Strategy != "equal-weight" {
		t.Errorf("Strategy = %q, want equal-weight", cfg.Backtest.Strategy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("GRPC_PORT", "7000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Server.GRPCPort != 7000 {
		t.Errorf("Server.GRPCPort = %d, want 7000", cfg.Server.GRPCPort)
	}

	t.Setenv("APCA_API_KEY_ID", "canonical")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "costs:\n  commission_bps: -3\n")); err == nil {
		t.Error("Load with negative commission should fail")
	}

	cfg, err := Load(writeConfig(t, "execution:\n  spread_source: magic\nportfolio:\n  cash_policy: margin\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if _, err := cfg.ExecutionConfig(); err == nil {
		t.Error("ExecutionConfig with unknown spread source should fail")
	}
	if _, err := cfg.PortfolioConfig(); err == nil {
		t.Error("PortfolioConfig with unknown cash policy should fail")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("TPLUS_CONFIG", "")
	if got := PathFromEnv(); got != DefaultPath {
		t.Errorf("PathFromEnv() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("TPLUS_CONFIG", "/etc/tplus.yaml")
	if got := PathFromEnv(); got != "/etc/tplus.yaml" {
		t.Errorf("PathFromEnv() = %q, want /etc/tplus.yaml", got)
	}
}

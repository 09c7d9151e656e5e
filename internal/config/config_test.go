package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging") // no profile adjustments

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Trading.InitialCapital != 1_000_000 {
		t.Errorf("InitialCapital = %.0f, want 1000000", cfg.Trading.InitialCapital)
	}
	if cfg.Trading.MaxPositions != 5 {
		t.Errorf("MaxPositions = %d, want 5", cfg.Trading.MaxPositions)
	}
	if cfg.Analysis.MinScore != 75 {
		t.Errorf("MinScore = %.0f, want 75", cfg.Analysis.MinScore)
	}
	if len(cfg.Analysis.TargetMarkets) != 5 {
		t.Errorf("TargetMarkets = %v, want 5 markets", cfg.Analysis.TargetMarkets)
	}
	if len(cfg.Analysis.Timeframes) != 3 {
		t.Errorf("Timeframes = %v, want 3", cfg.Analysis.Timeframes)
	}
}

func TestProductionProfileTightensLimits(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Trading.MaxDailyLoss != 0.05 {
		t.Errorf("production MaxDailyLoss = %.2f, want 0.05", cfg.Trading.MaxDailyLoss)
	}
	if cfg.Trading.StopLossRatio != 0.06 {
		t.Errorf("production StopLossRatio = %.2f, want 0.06", cfg.Trading.StopLossRatio)
	}
	if cfg.Analysis.MinScore != 80 {
		t.Errorf("production MinScore = %.0f, want 80", cfg.Analysis.MinScore)
	}
}

func TestDevelopmentProfileShortensInterval(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Trading.AnalysisIntervalS != 60 {
		t.Errorf("development AnalysisIntervalS = %d, want 60", cfg.Trading.AnalysisIntervalS)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			UpbitAccessKey: "ak",
			UpbitSecretKey: "sk",
			Trading: TradingConfig{
				InitialCapital:    1_000_000,
				MaxPositions:      5,
				MaxCapitalPerCoin: 0.2,
				StopLossRatio:     0.08,
				TakeProfitRatio:   0.2,
				MinOrderAmount:    5_000,
			},
			Analysis: AnalysisConfig{
				TargetMarkets: []string{"KRW-BTC"},
				MinScore:      75,
			},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		requireKeys bool
		wantErr     bool
	}{
		{name: "valid", mutate: func(c *Config) {}, requireKeys: true, wantErr: false},
		{name: "missing keys required", mutate: func(c *Config) { c.UpbitAccessKey = "" }, requireKeys: true, wantErr: true},
		{name: "missing keys allowed in safe mode", mutate: func(c *Config) { c.UpbitAccessKey = "" }, requireKeys: false, wantErr: false},
		{name: "capital below min order", mutate: func(c *Config) { c.Trading.InitialCapital = 1000 }, wantErr: true},
		{name: "zero positions", mutate: func(c *Config) { c.Trading.MaxPositions = 0 }, wantErr: true},
		{name: "per coin ratio above 1", mutate: func(c *Config) { c.Trading.MaxCapitalPerCoin = 1.5 }, wantErr: true},
		{name: "no markets", mutate: func(c *Config) { c.Analysis.TargetMarkets = nil }, wantErr: true},
		{name: "non KRW market", mutate: func(c *Config) { c.Analysis.TargetMarkets = []string{"BTC-ETH"} }, wantErr: true},
		{name: "score out of range", mutate: func(c *Config) { c.Analysis.MinScore = 120 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate(tt.requireKeys)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

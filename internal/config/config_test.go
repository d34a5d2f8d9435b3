package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.State.Dir != "/shared" {
		t.Fatalf("state.dir = %q, want /shared", cfg.State.Dir)
	}
	if cfg.Monitor.Interval != 60*time.Second {
		t.Fatalf("monitor.interval = %v, want 60s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.SweepInterval != 5*time.Second {
		t.Fatalf("monitor.sweep_interval = %v, want 5s", cfg.Monitor.SweepInterval)
	}
	if cfg.Monitor.USDAmount != 100 {
		t.Fatalf("monitor.usd_amount = %v, want 100", cfg.Monitor.USDAmount)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Fatalf("server.listen_addr = %q, want :8000", cfg.Server.ListenAddr)
	}
	if cfg.Jupiter.BaseURL != "https://quote-api.jup.ag/v6" {
		t.Fatalf("jupiter.base_url = %q", cfg.Jupiter.BaseURL)
	}
	if len(cfg.Alerting.Channels) != 1 || cfg.Alerting.Channels[0] != "ntfy" {
		t.Fatalf("alerting.channels = %v, want [ntfy]", cfg.Alerting.Channels)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("JUPWATCHER_MONITOR_USD_AMOUNT", "250")
	t.Setenv("JUPWATCHER_MONITOR_BUY_ALERTS", "1.5,0.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.USDAmount != 250 {
		t.Fatalf("monitor.usd_amount = %v, want 250", cfg.Monitor.USDAmount)
	}
	if cfg.Monitor.BuyAlerts != "1.5,0.9" {
		t.Fatalf("monitor.buy_alerts = %q", cfg.Monitor.BuyAlerts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Monitor.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero interval 应返回错误")
	}

	cfg = base()
	cfg.Monitor.USDAmount = -5
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative usd amount 应返回错误")
	}

	cfg = base()
	cfg.Alerting.Telegram.Enabled = true
	cfg.Alerting.Telegram.BotToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without token 应返回错误")
	}
}

func TestParseAlertList(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []float64
	}{
		{"empty", "", []float64{}},
		{"single", "1.5", []float64{1.5}},
		{"sorted_deduped", "2.0, 1.0, 2.0", []float64{1.0, 2.0}},
		{"trailing_comma", "1.0,", []float64{1.0}},
		{"malformed_discards_all", "1.0,abc,2.0", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseAlertList(tc.raw)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("ParseAlertList(%q) = %v, want nil", tc.raw, got)
				}
				return
			}
			if len(got) != len(tc.want) {
				t.Fatalf("ParseAlertList(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("ParseAlertList(%q) = %v, want %v", tc.raw, got, tc.want)
				}
			}
		})
	}
}

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"jupwatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	State       StateConfig       `mapstructure:"state"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Jupiter     JupiterConfig     `mapstructure:"jupiter"`
	Dexscreener DexscreenerConfig `mapstructure:"dexscreener"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StateConfig locates the shared JSON documents both processes read and write.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// MonitorConfig governs the polling monitor and its defaults. The alert lists
// and reset policy here are fallbacks; the persisted config document, when
// present, overrides them at the top of every cycle.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	USDAmount         float64       `mapstructure:"usd_amount"`
	BuyAlerts         string        `mapstructure:"buy_alerts"`
	SellAlerts        string        `mapstructure:"sell_alerts"`
	AlertResetMinutes int           `mapstructure:"alert_reset_minutes"`
	InputMint         string        `mapstructure:"input_mint"`
	OutputMint        string        `mapstructure:"output_mint"`
}

// JupiterConfig captures quote API connectivity.
type JupiterConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SlippagePct    int           `mapstructure:"slippage_pct"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DexscreenerConfig covers the contract-alert value source.
type DexscreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Channels []string       `mapstructure:"channels"`
	Ntfy     NtfyConfig     `mapstructure:"ntfy"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// NtfyConfig 描述 ntfy 推送参数。
type NtfyConfig struct {
	Server string `mapstructure:"server"`
	Topic  string `mapstructure:"topic"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig covers the control-surface API process.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	BaseURL    string `mapstructure:"base_url"`
	StaticDir  string `mapstructure:"static_dir"`
}

// DatabaseConfig encapsulates the optional PostgreSQL audit trail. A zero
// AuditRetention keeps trigger records forever; a positive value prunes
// records older than the window after each insert.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AuditRetention  time.Duration `mapstructure:"audit_retention"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JUPWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "jupwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("state.dir", "/shared")

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.sweep_interval", "5s")
	v.SetDefault("monitor.usd_amount", 100.0)
	v.SetDefault("monitor.alert_reset_minutes", 0)

	v.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.slippage_pct", 1)
	v.SetDefault("jupiter.request_timeout", "10s")
	v.SetDefault("jupiter.user_agent", "jupwatcher/1.0")

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.request_timeout", "10s")
	v.SetDefault("dexscreener.check_interval", "60s")

	v.SetDefault("alerting.channels", []string{"ntfy"})
	v.SetDefault("alerting.ntfy.server", "https://ntfy.sh")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.base_url", "http://127.0.0.1:8000")
	v.SetDefault("server.static_dir", "frontend")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.audit_retention", "0s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir must not be empty")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.Monitor.SweepInterval <= 0 {
		return fmt.Errorf("monitor.sweep_interval must be greater than zero")
	}
	if c.Monitor.USDAmount <= 0 {
		return fmt.Errorf("monitor.usd_amount must be greater than zero")
	}
	if c.Monitor.AlertResetMinutes < 0 {
		return fmt.Errorf("monitor.alert_reset_minutes cannot be negative")
	}
	if c.Database.AuditRetention < 0 {
		return fmt.Errorf("database.audit_retention cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ParseAlertList parses a comma-separated price list into a deduplicated,
// ascending-sorted slice. Any malformed entry discards the whole list.
func ParseAlertList(raw string) []float64 {
	seen := make(map[float64]struct{})
	values := make([]float64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	sort.Float64s(values)
	return values
}

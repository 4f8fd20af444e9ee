package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gridwatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Faults    FaultsConfig    `mapstructure:"faults"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// GeneratorConfig governs the synthetic data generator.
type GeneratorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	AlignToInterval   bool          `mapstructure:"align_to_interval"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey   int64         `mapstructure:"advisory_lock_key"`
	SolarCapacityW    float64       `mapstructure:"solar_capacity_w"`
	WindCapacityW     float64       `mapstructure:"wind_capacity_w"`
	BaseConsumptionW  float64       `mapstructure:"base_consumption_w"`
	BatteryCapacityWh float64       `mapstructure:"battery_capacity_wh"`
	InitialBatteryWh  float64       `mapstructure:"initial_battery_wh"`
	Seed              int64         `mapstructure:"seed"`
}

// FaultsConfig tunes the fault detector thresholds and cadence.
type FaultsConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	Window             time.Duration `mapstructure:"window"`
	EfficiencySoft     float64       `mapstructure:"efficiency_soft"`
	EfficiencyHard     float64       `mapstructure:"efficiency_hard"`
	WindOutputSoft     float64       `mapstructure:"wind_output_soft"`
	WindOutputHard     float64       `mapstructure:"wind_output_hard"`
	BatterySoftPct     float64       `mapstructure:"battery_soft_pct"`
	BatteryHardPct     float64       `mapstructure:"battery_hard_pct"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	ConsecutiveToFault int           `mapstructure:"consecutive_to_fault"`
}

// TradingConfig defines the simulated energy market.
type TradingConfig struct {
	BaseBuyPrice  float64 `mapstructure:"base_buy_price"`
	BaseSellPrice float64 `mapstructure:"base_sell_price"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig governs the dashboard API listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultHours int           `mapstructure:"default_hours"`
	MaxHours     int           `mapstructure:"max_hours"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRIDWATCHER")
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
	v.SetDefault("app.name", "gridwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("generator.interval", "30s")
	v.SetDefault("generator.align_to_interval", true)
	v.SetDefault("generator.startup_delay", "0s")
	v.SetDefault("generator.advisory_lock_key", int64(0x67726964))
	v.SetDefault("generator.solar_capacity_w", 5000.0)
	v.SetDefault("generator.wind_capacity_w", 3000.0)
	v.SetDefault("generator.base_consumption_w", 2000.0)
	v.SetDefault("generator.battery_capacity_wh", 10000.0)
	v.SetDefault("generator.initial_battery_wh", 5000.0)
	v.SetDefault("generator.seed", int64(0))

	v.SetDefault("faults.interval", "60s")
	v.SetDefault("faults.window", "1h")
	v.SetDefault("faults.efficiency_soft", 0.15)
	v.SetDefault("faults.efficiency_hard", 0.10)
	v.SetDefault("faults.wind_output_soft", 0.5)
	v.SetDefault("faults.wind_output_hard", 0.25)
	v.SetDefault("faults.battery_soft_pct", 10.0)
	v.SetDefault("faults.battery_hard_pct", 5.0)
	v.SetDefault("faults.stale_after", "5m")
	v.SetDefault("faults.consecutive_to_fault", 3)

	v.SetDefault("trading.base_buy_price", 0.12)
	v.SetDefault("trading.base_sell_price", 0.08)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.default_hours", 24)
	v.SetDefault("server.max_hours", 720)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Generator.Interval <= 0 {
		return fmt.Errorf("generator.interval must be greater than zero")
	}
	if c.Faults.Interval <= 0 {
		return fmt.Errorf("faults.interval must be greater than zero")
	}
	if c.Generator.BatteryCapacityWh <= 0 {
		return fmt.Errorf("generator.battery_capacity_wh must be greater than zero")
	}
	if c.Generator.InitialBatteryWh < 0 || c.Generator.InitialBatteryWh > c.Generator.BatteryCapacityWh {
		return fmt.Errorf("generator.initial_battery_wh must be within [0, battery_capacity_wh]")
	}
	if c.Faults.ConsecutiveToFault <= 0 {
		return fmt.Errorf("faults.consecutive_to_fault must be greater than zero")
	}
	if c.Faults.EfficiencyHard > c.Faults.EfficiencySoft {
		return fmt.Errorf("faults.efficiency_hard cannot exceed faults.efficiency_soft")
	}
	if c.Trading.BaseBuyPrice <= 0 || c.Trading.BaseSellPrice <= 0 {
		return fmt.Errorf("trading base prices must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Server.DefaultHours <= 0 || c.Server.MaxHours < c.Server.DefaultHours {
		return fmt.Errorf("server.default_hours/max_hours are inconsistent")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

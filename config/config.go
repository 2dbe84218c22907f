package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	OKX      OKXConfig      `mapstructure:"okx"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Raw      RawConfig      `mapstructure:"raw"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type OKXConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}
type WSConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProfileConfig controls the volume-profile pipeline: which instruments are
// streamed, how prices are binned and how windows rotate.
type ProfileConfig struct {
	Instruments []string `mapstructure:"instruments"` // instIds, e.g. "BTC-USDT"

	// Per-instrument tick size overrides (decimal strings). When empty the
	// tick size reported by the exchange instrument metadata is used.
	TickSizes map[string]string `mapstructure:"tick_sizes"`

	ValueAreaPct   float64       `mapstructure:"value_area_pct"` // (0,1], default 0.7
	WindowPolicy   string        `mapstructure:"window_policy"`  // "session" or "rolling"
	WindowDuration time.Duration `mapstructure:"window_duration"`

	QueueCapacity     int           `mapstructure:"queue_capacity"`
	BatchSize         int           `mapstructure:"batch_size"`
	PopTimeout        time.Duration `mapstructure:"pop_timeout"`
	PublishInterval   time.Duration `mapstructure:"publish_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	BackfillLimit int `mapstructure:"backfill_limit"` // recent trades per instrument, 0 disables
}

// RawConfig controls raw WebSocket message archival to JSONL files.
type RawConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"` // prune older files at startup, 0 keeps everything
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	// TODO: env path
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., OKX_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("okx.ws.url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("okx.ws.timeout", "10s")
	v.SetDefault("okx.rest.base_url", "https://www.okx.com")
	v.SetDefault("okx.rest.timeout", "10s")

	v.SetDefault("profile.instruments", []string{"BTC-USDT", "ETH-USDT"})
	v.SetDefault("profile.value_area_pct", 0.7)
	v.SetDefault("profile.window_policy", "rolling")
	v.SetDefault("profile.window_duration", "1h")
	v.SetDefault("profile.queue_capacity", 4096)
	v.SetDefault("profile.batch_size", 256)
	v.SetDefault("profile.pop_timeout", "250ms")
	v.SetDefault("profile.publish_interval", "500ms")
	v.SetDefault("profile.reconcile_interval", "1m")
	v.SetDefault("profile.backfill_limit", 100)

	v.SetDefault("raw.enabled", false)
	v.SetDefault("raw.dir", "data/raw")
	v.SetDefault("raw.retention_days", 7)
}

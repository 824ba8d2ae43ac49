// Package config loads and validates the collector's YAML configuration.
// Environment variables override file values (e.g. TRADESTATION_CLIENT_ID).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tsquant/go-bars-collector/internal/models"
	"github.com/tsquant/go-bars-collector/internal/storage"
)

// Credentials holds the OAuth2 client credentials and the long-lived
// refresh token obtained from the developer portal.
type Credentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Config is the full configuration surface of the collector.
type Config struct {
	TradeStation Credentials `mapstructure:"tradestation"`

	DataDir           string        `mapstructure:"data_dir"`
	StartDate         string        `mapstructure:"start_date"`
	Interval          int           `mapstructure:"interval"`
	Unit              string        `mapstructure:"unit"`
	Symbols           []string      `mapstructure:"symbols"`
	StorageFormat     string        `mapstructure:"storage_format"`
	Compression       string        `mapstructure:"compression"`
	RateLimitDelay    time.Duration `mapstructure:"rate_limit_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	MaxBarsPerRequest int           `mapstructure:"max_bars_per_request"`

	Log Log `mapstructure:"log"`
}

// Load reads the configuration file at path, applies defaults and env-var
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("data_dir", "./data")
	v.SetDefault("start_date", "2007-01-01")
	v.SetDefault("interval", 1)
	v.SetDefault("unit", "Minute")
	v.SetDefault("storage_format", "single")
	v.SetDefault("compression", "zstd")
	v.SetDefault("rate_limit_delay", "500ms")
	v.SetDefault("max_retries", 3)
	v.SetDefault("max_bars_per_request", 57600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and enumerated values.
func (c *Config) Validate() error {
	var missing []string
	if c.TradeStation.ClientID == "" {
		missing = append(missing, "tradestation.client_id")
	}
	if c.TradeStation.ClientSecret == "" {
		missing = append(missing, "tradestation.client_secret")
	}
	if c.TradeStation.RefreshToken == "" {
		missing = append(missing, "tradestation.refresh_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config fields: %s", strings.Join(missing, ", "))
	}

	if _, err := c.StartTime(); err != nil {
		return err
	}
	if _, err := storage.ParseFormat(c.StorageFormat); err != nil {
		return err
	}
	if _, err := storage.ParseCompression(c.Compression); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.Interval)
	}
	if c.RateLimitDelay < 0 {
		return fmt.Errorf("rate_limit_delay cannot be negative")
	}
	return nil
}

// StartTime parses start_date as a UTC calendar date.
func (c *Config) StartTime() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", c.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_date %q: %w", c.StartDate, err)
	}
	return t, nil
}

// ActiveSymbols returns the configured symbols, or the full default table
// when none are listed.
func (c *Config) ActiveSymbols() []string {
	if len(c.Symbols) > 0 {
		return c.Symbols
	}
	return models.AllSymbols()
}

// IntervalSuffix names single-file outputs, e.g. "1min" or "5min".
func (c *Config) IntervalSuffix() string {
	unit := strings.ToLower(c.Unit)
	switch unit {
	case "minute":
		unit = "min"
	case "daily":
		unit = "day"
	}
	return fmt.Sprintf("%d%s", c.Interval, unit)
}

// Template is a starter configuration written by `tsbars config init`.
const Template = `# TradeStation bars collector configuration
# Copy to config.yaml and fill in your API credentials.

tradestation:
  client_id: "YOUR_CLIENT_ID"
  client_secret: "YOUR_CLIENT_SECRET"
  refresh_token: "YOUR_REFRESH_TOKEN"

data_dir: "./data"
start_date: "2007-01-01"
interval: 1
unit: "Minute"

# single  - one parquet file per symbol (ES_1min.parquet)
# daily   - hive-style day partitions (ES/year=2024/month=01/day=15/ES.parquet)
# monthly - hive-style month partitions (ES/year_month=2024-01/data.parquet)
storage_format: "single"

# zstd | snappy | gzip | lz4 | none
compression: "zstd"

rate_limit_delay: "500ms"
max_retries: 3

log:
  level: "info"
  format: "text"

# Omit to download the full default futures table.
# symbols:
#   - "@ES"
#   - "@NQ"
#   - "@CL"
`

// WriteTemplate writes the starter configuration to path. It refuses to
// overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(Template), 0o644)
}

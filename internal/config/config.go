// Package config loads settings from .env, an optional YAML file and TAXLAB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"chain-tax-lab/internal/pricing"
	"chain-tax-lab/internal/taxengine"
)

// EnvPrefix prefixes every environment override, e.g. TAXLAB_RPC_URL.
const EnvPrefix = "TAXLAB"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full application configuration.
type Config struct {
	Network string        `mapstructure:"network"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Storage StorageConfig `mapstructure:"storage"`
	Prices  PriceConfig   `mapstructure:"prices"`
	Tax     TaxConfig     `mapstructure:"tax"`
	Workers int           `mapstructure:"workers"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// RPCConfig configures the node connection.
type RPCConfig struct {
	URL        string        `mapstructure:"url"`
	WSURL      string        `mapstructure:"ws_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	BlockChunk int64         `mapstructure:"block_chunk"`
}

// StorageConfig selects and configures persistence.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // optional analytics sink
}

// PriceConfig configures the external price API and the quote cache.
type PriceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RatePerSec     float64       `mapstructure:"rate_per_sec"`
	Burst          int           `mapstructure:"burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTolerance time.Duration `mapstructure:"cache_tolerance"`
}

// TaxConfig holds the flat rates as decimal strings.
type TaxConfig struct {
	OrdinaryRate         string `mapstructure:"ordinary_rate"`
	ShortTermRate        string `mapstructure:"short_term_rate"`
	LongTermRate         string `mapstructure:"long_term_rate"`
	HoldingThresholdDays int    `mapstructure:"holding_threshold_days"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// setDefaults registers every key, which also makes each key visible to AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "ethereum")

	v.SetDefault("rpc.url", "")
	v.SetDefault("rpc.ws_url", "")
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.block_chunk", 10_000)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("prices.base_url", pricing.DefaultLlamaBaseURL)
	v.SetDefault("prices.rate_per_sec", pricing.DefaultRatePerSec)
	v.SetDefault("prices.burst", 1)
	v.SetDefault("prices.timeout", pricing.DefaultTimeout)
	v.SetDefault("prices.cache_tolerance", pricing.DefaultTolerance)

	v.SetDefault("tax.ordinary_rate", "0.30")
	v.SetDefault("tax.short_term_rate", "0.30")
	v.SetDefault("tax.long_term_rate", "0.15")
	v.SetDefault("tax.holding_threshold_days", 365)

	v.SetDefault("workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// Load reads configuration into a fresh viper instance. See LoadWith.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads configuration into v, which may carry bound command-line flags.
// Precedence, highest first: flags, environment (.env included), config file, defaults.
// An empty path looks for taxlab.yaml in the working directory and tolerates its absence.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("taxlab")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Rates parses the configured tax rates. It does not validate them.
func (c *Config) Rates() (taxengine.Rates, error) {
	parse := func(name, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s rate %q: %v", ErrInvalidConfig, name, s, err)
		}
		return d, nil
	}

	ordinary, err := parse("ordinary", c.Tax.OrdinaryRate)
	if err != nil {
		return taxengine.Rates{}, err
	}
	short, err := parse("short-term", c.Tax.ShortTermRate)
	if err != nil {
		return taxengine.Rates{}, err
	}
	long, err := parse("long-term", c.Tax.LongTermRate)
	if err != nil {
		return taxengine.Rates{}, err
	}
	return taxengine.Rates{
		Ordinary:             ordinary,
		ShortTerm:            short,
		LongTerm:             long,
		HoldingThresholdDays: c.Tax.HoldingThresholdDays,
	}, nil
}

// Validate rejects settings that would fail a job at start.
func (c *Config) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("%w: network is required", ErrInvalidConfig)
	}

	rates, err := c.Rates()
	if err != nil {
		return err
	}
	if err := rates.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	tol := c.Prices.CacheTolerance
	if tol < pricing.MinTolerance || tol > pricing.MaxTolerance {
		return fmt.Errorf("%w: %w: got %s", ErrInvalidConfig, pricing.ErrInvalidTolerance, tol)
	}
	if c.Prices.RatePerSec <= 0 {
		return fmt.Errorf("%w: prices.rate_per_sec must be positive", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.RPC.BlockChunk < 1 {
		return fmt.Errorf("%w: rpc.block_chunk must be positive", ErrInvalidConfig)
	}
	return nil
}

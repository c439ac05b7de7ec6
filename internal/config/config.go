// Package config loads the fleet configuration from fleet.yaml, .env and FLEET_*
// environment variables.
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/agent"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/connector/binance"
	"github.com/rxtech-lab/argo-fleet/internal/connector/paper"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/orchestrator"
	"github.com/rxtech-lab/argo-fleet/internal/position"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. FLEET_STORAGE_PATH.
	EnvPrefix = "FLEET"

	VenuePaper          = "paper"
	VenueBinanceTestnet = "binance-testnet"
)

// StorageConfig locates the DuckDB database.
type StorageConfig struct {
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string `mapstructure:"path" yaml:"path" json:"path" validate:"required" jsonschema:"default=data/fleet.duckdb"`
}

// AdvisoryConfig selects the pattern advisor.
type AdvisoryConfig struct {
	// Enabled turns on the history-backed advisor; otherwise signals are not adjusted.
	Enabled bool                   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	History advisory.HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `mapstructure:"listen" yaml:"listen" json:"listen" jsonschema:"default=:9090"`
}

// Config is the whole fleet configuration.
type Config struct {
	Log        logger.Config         `mapstructure:"log" yaml:"log" json:"log"`
	Storage    StorageConfig         `mapstructure:"storage" yaml:"storage" json:"storage"`
	Fleet      orchestrator.Config   `mapstructure:"fleet" yaml:"fleet" json:"fleet"`
	Risk       risk.Config           `mapstructure:"risk" yaml:"risk" json:"risk"`
	Positions  position.Config       `mapstructure:"positions" yaml:"positions" json:"positions"`
	Retry      connector.RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`
	Paper      paper.Config          `mapstructure:"paper" yaml:"paper" json:"paper"`
	MarketData marketdata.FeedConfig `mapstructure:"market_data" yaml:"market_data" json:"market_data"`
	// Binance enables the binance-testnet venue.
	Binance  *binance.Config `mapstructure:"binance" yaml:"binance,omitempty" json:"binance,omitempty"`
	Advisory AdvisoryConfig  `mapstructure:"advisory" yaml:"advisory" json:"advisory"`
	Metrics  MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Report   report.Config   `mapstructure:"report" yaml:"report" json:"report"`
	// Agents are created on start when no agent of the same name exists.
	Agents []types.AgentConfig `mapstructure:"agents" yaml:"agents" json:"agents"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log:     logger.Config{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Storage: StorageConfig{Path: "data/fleet.duckdb"},
		Fleet: orchestrator.Config{
			MaxAgents:       orchestrator.DefaultMaxAgents,
			HealthInterval:  30 * time.Second,
			StaleAfter:      5 * time.Minute,
			PersistInterval: 30 * time.Second,
			Agent:           agent.DefaultConfig(),
		},
		Risk: risk.Config{
			SweepInterval: 5 * time.Second,
			RollingWindow: 24 * time.Hour,
		},
		Positions: position.Config{MonitorInterval: time.Second, PriceInterval: "1m"},
		Retry:     connector.DefaultRetryConfig(),
		Paper:     paper.Config{InitialBalance: 10000, FeeRate: 0.001, PriceInterval: "1m"},
		MarketData: marketdata.FeedConfig{
			Provider:   marketdata.ProviderSynthetic,
			Seed:       1,
			StartPrice: 100,
			Volatility: 0.01,
		},
		Advisory: AdvisoryConfig{History: advisory.DefaultHistoryConfig()},
		Metrics:  MetricsConfig{Listen: ":9090"},
		Report:   report.Config{Path: "data/status.yaml"},
	}
}

// Load reads path, or fleet.yaml in the working directory or ./configs when path is
// empty. A missing default file is not an error. Variables from .env are loaded first
// and never override the real environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to load .env", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fleet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to decode config", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every scalar default so environment overrides are picked up.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"log.level":        d.Log.Level,
		"log.file":         d.Log.File,
		"log.max_size_mb":  d.Log.MaxSizeMB,
		"log.max_backups":  d.Log.MaxBackups,
		"log.max_age_days": d.Log.MaxAgeDays,
		"log.compress":     d.Log.Compress,

		"storage.path": d.Storage.Path,

		"fleet.max_agents":             d.Fleet.MaxAgents,
		"fleet.health_interval":        d.Fleet.HealthInterval,
		"fleet.stale_after":            d.Fleet.StaleAfter,
		"fleet.persist_interval":       d.Fleet.PersistInterval,
		"fleet.agent.min_confidence":   d.Fleet.Agent.MinConfidence,
		"fleet.agent.tick_timeout":     d.Fleet.Agent.TickTimeout,
		"fleet.agent.stop_grace":       d.Fleet.Agent.StopGrace,
		"fleet.agent.close_on_reverse": d.Fleet.Agent.CloseOnReverse,
		"fleet.agent.tick_every":       d.Fleet.Agent.TickEvery,

		"fleet.agent.advisory.min_relevance": d.Fleet.Agent.Advisory.MinRelevance,
		"fleet.agent.advisory.weight":        d.Fleet.Agent.Advisory.Weight,
		"fleet.agent.advisory.override":      d.Fleet.Agent.Advisory.Override,

		"risk.sweep_interval":         d.Risk.SweepInterval,
		"risk.rolling_window":         d.Risk.RollingWindow,
		"risk.rolling_loss_threshold": d.Risk.RollingLossThreshold,

		"positions.monitor_interval": d.Positions.MonitorInterval,
		"positions.price_interval":   d.Positions.PriceInterval,

		"retry.initial_interval": d.Retry.InitialInterval,
		"retry.max_interval":     d.Retry.MaxInterval,
		"retry.max_elapsed_time": d.Retry.MaxElapsedTime,
		"retry.max_retries":      d.Retry.MaxRetries,

		"paper.initial_balance": d.Paper.InitialBalance,
		"paper.fee_rate":        d.Paper.FeeRate,
		"paper.slippage_bps":    d.Paper.SlippageBps,
		"paper.price_interval":  d.Paper.PriceInterval,

		"market_data.provider":        string(d.MarketData.Provider),
		"market_data.polygon_api_key": d.MarketData.PolygonAPIKey,
		"market_data.seed":            d.MarketData.Seed,
		"market_data.start_price":     d.MarketData.StartPrice,
		"market_data.volatility":      d.MarketData.Volatility,

		"advisory.enabled":             d.Advisory.Enabled,
		"advisory.history.lookback":    d.Advisory.History.Lookback,
		"advisory.history.min_samples": d.Advisory.History.MinSamples,

		"metrics.listen": d.Metrics.Listen,
		"report.path":    d.Report.Path,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate checks struct tags, every seeded agent and the venues they name.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid config", err)
	}

	if c.Binance != nil {
		if err := c.Binance.Validate(); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(c.Agents))

	for i := range c.Agents {
		a := c.Agents[i].WithDefaults()
		if err := a.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfig, err, "agent %d", i)
		}

		if names[a.Name] {
			return errors.Newf(errors.ErrCodeDuplicateName, "agent name %q appears twice", a.Name)
		}

		names[a.Name] = true

		if err := c.CheckVenue(a.Venue); err != nil {
			return err
		}
	}

	return nil
}

// CheckVenue reports whether venue can be served by this configuration.
func (c *Config) CheckVenue(venue string) error {
	switch venue {
	case VenuePaper:
		return nil
	case VenueBinanceTestnet:
		if c.Binance == nil {
			return errors.Newf(errors.ErrCodeUnsupportedVenue, "venue %s needs a binance section", venue)
		}

		return nil
	default:
		return errors.Newf(errors.ErrCodeUnsupportedVenue, "unsupported venue %q", venue)
	}
}

// Schema returns the JSON schema of Config.
func Schema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	r.FieldNameTag = "yaml"

	data, err := json.MarshalIndent(r.Reflect(&Config{}), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnknown, "failed to marshal config schema", err)
	}

	return string(data), nil
}

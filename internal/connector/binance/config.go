package binance

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// Config contains credentials for the Binance spot testnet.
type Config struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Binance testnet API key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" json:"secret_key" jsonschema:"title=Secret Key,description=Binance testnet API secret key" validate:"required"`
	// BaseURL overrides the testnet endpoint. It must still point at a testnet host.
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url" jsonschema:"title=Base URL,description=Optional testnet base URL override"`
	// QuoteAsset is the asset the balance is reported in.
	QuoteAsset string `mapstructure:"quote_asset" yaml:"quote_asset" json:"quote_asset" jsonschema:"default=USDT"`
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid binance testnet config", err)
	}

	if c.BaseURL != "" && !strings.Contains(c.BaseURL, "testnet") {
		return errors.Newf(errors.ErrCodeUnsupportedVenue, "refusing non-testnet endpoint %s", c.BaseURL)
	}

	return nil
}

// Package config loads the gateway's deployment configuration from the
// environment and turns it into wired components.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/lucidai/x402gate/networks"
	"github.com/lucidai/x402gate/routes"
)

// Config is the environment-driven deployment configuration.
type Config struct {
	// FacilitatorURL is the base URL of the verify/settle service.
	FacilitatorURL string `env:"X402_FACILITATOR_URL" validate:"required,url"`

	// PayTo is the payout address every payment must target.
	PayTo string `env:"X402_PAY_TO" validate:"required,eth_addr"`

	// DefaultNetwork is the legacy name of the network advertised as
	// default in payment-required responses.
	DefaultNetwork string `env:"X402_DEFAULT_NETWORK" envDefault:"base" validate:"required"`

	// Networks restricts the catalog to a subset of the stock networks.
	// Empty means all of them.
	Networks []string `env:"X402_NETWORKS" envSeparator:","`

	// RPCURLs maps legacy network names to EVM RPC endpoints used for
	// token introspection, e.g. "base=https://mainnet.base.org".
	RPCURLs map[string]string `env:"X402_RPC_URLS" envSeparator:"," envKeyValSeparator:"="`

	// RoutePrices maps request paths to USD prices,
	// e.g. "/api/chat=0.02,/api/report=0.05".
	RoutePrices map[string]string `env:"X402_ROUTE_PRICES" envSeparator:"," envKeyValSeparator:"="`

	// Timeout bounds facilitator verification and token introspection.
	Timeout time.Duration `env:"X402_TIMEOUT" envDefault:"5s"`

	// SettleTimeout bounds facilitator settlement.
	SettleTimeout time.Duration `env:"X402_SETTLE_TIMEOUT" envDefault:"8s"`

	LogLevel string `env:"X402_LOG_LEVEL" envDefault:"info"`

	EnableMetrics bool `env:"X402_ENABLE_METRICS" envDefault:"false"`
}

var validate = validator.New()

// Load parses and validates the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Registry builds the route price table.
func (c *Config) Registry() (*routes.Registry, error) {
	return routes.NewRegistry(c.RoutePrices)
}

// Catalog builds the network catalog for the configured network set.
func (c *Config) Catalog() (*networks.Catalog, error) {
	return networks.DefaultCatalog(c.DefaultNetwork, c.Networks...)
}

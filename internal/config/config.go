// Package config loads the service configuration from the environment.
// All merchant and collaborator settings are injected at construction time;
// nothing here is process-global.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/yourorg/walletpay/internal/payment"
)

// Merchant holds the wallet-facing merchant settings used to build payment
// requests.
type Merchant struct {
	MerchantID         string
	CurrencyCode       string
	CountryCode        string
	SupportedCountries []string
	SupportedNetworks  []payment.NetworkID
	RequiredContacts   []payment.ContactField
}

// Config holds the full service configuration.
type Config struct {
	AppEnv          string
	Port            string
	LogLevel        string
	LogFormat       string
	Merchant        Merchant
	TokenizationURL string
	TokenizationKey string
	ChargeURL       string
	ChargeKey       string
	HTTPTimeout     time.Duration
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:    valueOrDefault(k.String("APP_ENV"), "development"),
		Port:      valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		Merchant: Merchant{
			MerchantID:         k.String("WALLET_MERCHANT_ID"),
			CurrencyCode:       valueOrDefault(k.String("WALLET_CURRENCY_CODE"), "USD"),
			CountryCode:        valueOrDefault(k.String("WALLET_COUNTRY_CODE"), "US"),
			SupportedCountries: splitAndTrim(valueOrDefault(k.String("WALLET_SUPPORTED_COUNTRIES"), "US")),
			SupportedNetworks:  parseNetworks(k.String("WALLET_SUPPORTED_NETWORKS")),
			RequiredContacts:   []payment.ContactField{payment.ContactName},
		},
		TokenizationURL: k.String("TOKENIZATION_URL"),
		TokenizationKey: k.String("TOKENIZATION_KEY"),
		ChargeURL:       k.String("CHARGE_URL"),
		ChargeKey:       k.String("CHARGE_KEY"),
		HTTPTimeout:     parseDuration(k.String("HTTP_TIMEOUT"), "10s"),
	}

	if cfg.Merchant.MerchantID == "" {
		return nil, errors.New("WALLET_MERCHANT_ID is required")
	}
	if cfg.TokenizationURL == "" {
		return nil, errors.New("TOKENIZATION_URL is required")
	}
	if cfg.ChargeURL == "" {
		return nil, errors.New("CHARGE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseNetworks(value string) []payment.NetworkID {
	names := splitAndTrim(value)
	if len(names) == 0 {
		return []payment.NetworkID{
			payment.NetworkVisa,
			payment.NetworkAmex,
			payment.NetworkMasterCard,
			payment.NetworkDiscover,
		}
	}
	out := make([]payment.NetworkID, 0, len(names))
	for _, n := range names {
		out = append(out, payment.NetworkID(strings.ToLower(n)))
	}
	return out
}

func parseDuration(value, fallback string) time.Duration {
	if strings.TrimSpace(value) == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

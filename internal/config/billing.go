package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Overdraft policies.
const (
	OverdraftBlock = "block"
	OverdraftAllow = "allow"
)

// Pricing fallback policies applied when no active rule matches.
const (
	PricingFallbackReject      = "reject"
	PricingFallbackZero        = "zero"
	PricingFallbackDefaultRate = "default_rate"
)

// Usage policies applied when a debit is refused for lack of credits.
const (
	InsufficientCreditsReject        = "reject"
	InsufficientCreditsUncollectible = "uncollectible"
)

type BillingConfig struct {
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Usage   UsageConfig   `mapstructure:"usage"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Report  ReportConfig  `mapstructure:"report"`
}

type LedgerConfig struct {
	Overdraft string `mapstructure:"overdraft" validate:"oneof=block allow"`
	Scale     int32  `mapstructure:"scale" validate:"gte=0,lte=18"`
}

type PricingConfig struct {
	Fallback    string            `mapstructure:"fallback" validate:"oneof=reject zero default_rate"`
	DefaultRate DefaultRateConfig `mapstructure:"default_rate"`
	CacheTTL    time.Duration     `mapstructure:"cache_ttl" validate:"gte=0"`
}

// DefaultRateConfig keeps prices as strings so they never pass through float64.
type DefaultRateConfig struct {
	InputTokenPrice  string `mapstructure:"input_token_price"`
	OutputTokenPrice string `mapstructure:"output_token_price"`
	BasePrice        string `mapstructure:"base_price"`
}

type UsageConfig struct {
	OnInsufficientCredits string `mapstructure:"on_insufficient_credits" validate:"oneof=reject uncollectible"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type ReportConfig struct {
	DefaultWindowDays int `mapstructure:"default_window_days" validate:"gte=1"`
	MaxPageSize       int `mapstructure:"max_page_size" validate:"gte=1"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Ledger: LedgerConfig{
			Overdraft: OverdraftBlock,
			Scale:     8,
		},
		Pricing: PricingConfig{
			Fallback: PricingFallbackReject,
			CacheTTL: 10 * time.Second,
		},
		Usage: UsageConfig{
			OnInsufficientCredits: InsufficientCreditsReject,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     25 * time.Millisecond,
		},
		Report: ReportConfig{
			DefaultWindowDays: 30,
			MaxPageSize:       100,
		},
	}
}

// AllowOverdraft reports whether debits may take a balance below zero.
func (c BillingConfig) AllowOverdraft() bool {
	return c.Ledger.Overdraft == OverdraftAllow
}

// DefaultRates parses the configured fallback rate. Empty base price means no flat fee.
func (c BillingConfig) DefaultRates() (input, output decimal.Decimal, base *decimal.Decimal, err error) {
	input, err = decimal.NewFromString(strings.TrimSpace(c.Pricing.DefaultRate.InputTokenPrice))
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, fmt.Errorf("pricing.default_rate.input_token_price: %w", err)
	}
	output, err = decimal.NewFromString(strings.TrimSpace(c.Pricing.DefaultRate.OutputTokenPrice))
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, fmt.Errorf("pricing.default_rate.output_token_price: %w", err)
	}
	if raw := strings.TrimSpace(c.Pricing.DefaultRate.BasePrice); raw != "" {
		parsed, perr := decimal.NewFromString(raw)
		if perr != nil {
			return decimal.Zero, decimal.Zero, nil, fmt.Errorf("pricing.default_rate.base_price: %w", perr)
		}
		base = &parsed
	}
	return input, output, base, nil
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creditledger/config") // Volume-mounted config
	v.AddConfigPath("/etc/creditledger")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("CREDITLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerBillingDefaults(v)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

// Set replaces the current config after validation.
func (h *BillingConfigHolder) Set(cfg BillingConfig) error {
	if err := ValidateBillingConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func registerBillingDefaults(v *viper.Viper) {
	defaults := DefaultBillingConfig()
	v.SetDefault("billing.ledger.overdraft", defaults.Ledger.Overdraft)
	v.SetDefault("billing.ledger.scale", defaults.Ledger.Scale)
	v.SetDefault("billing.pricing.fallback", defaults.Pricing.Fallback)
	v.SetDefault("billing.pricing.cache_ttl", defaults.Pricing.CacheTTL)
	v.SetDefault("billing.pricing.default_rate.input_token_price", "0")
	v.SetDefault("billing.pricing.default_rate.output_token_price", "0")
	v.SetDefault("billing.pricing.default_rate.base_price", "")
	v.SetDefault("billing.usage.on_insufficient_credits", defaults.Usage.OnInsufficientCredits)
	v.SetDefault("billing.retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("billing.retry.backoff", defaults.Retry.Backoff)
	v.SetDefault("billing.report.default_window_days", defaults.Report.DefaultWindowDays)
	v.SetDefault("billing.report.max_page_size", defaults.Report.MaxPageSize)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var root struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return BillingConfig{}, err
	}
	cfg := root.Billing
	cfg.Ledger.Overdraft = strings.ToLower(strings.TrimSpace(cfg.Ledger.Overdraft))
	cfg.Pricing.Fallback = strings.ToLower(strings.TrimSpace(cfg.Pricing.Fallback))
	cfg.Usage.OnInsufficientCredits = strings.ToLower(strings.TrimSpace(cfg.Usage.OnInsufficientCredits))
	if err := ValidateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

var billingValidator = validator.New()

// ValidateBillingConfig checks policy values and, when the default_rate
// fallback is selected, that the configured rates parse and are non-negative.
func ValidateBillingConfig(cfg BillingConfig) error {
	if err := billingValidator.Struct(cfg); err != nil {
		return fmt.Errorf("billing config: %w", err)
	}
	if cfg.Pricing.Fallback != PricingFallbackDefaultRate {
		return nil
	}
	input, output, base, err := cfg.DefaultRates()
	if err != nil {
		return err
	}
	if input.IsNegative() || output.IsNegative() || (base != nil && base.IsNegative()) {
		return errors.New("billing.pricing.default_rate cannot be negative")
	}
	return nil
}

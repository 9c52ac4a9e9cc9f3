// Package config loads service settings from defaults, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/currency"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/ledger"
)

type Config struct {
	Port     string `mapstructure:"port"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`
	FeesSeed string `mapstructure:"fees_seed"`

	FeeCacheTTL time.Duration `mapstructure:"fee_cache_ttl"`

	MinWithdrawalRaw   string          `mapstructure:"min_withdrawal_amount"`
	MinAnticipationRaw string          `mapstructure:"min_anticipation_amount"`
	MinWithdrawal      decimal.Decimal `mapstructure:"-"`
	MinAnticipation    decimal.Decimal `mapstructure:"-"`

	// HoldDays is the settlement hold per payment method.
	HoldDays      map[string]int `mapstructure:"hold_days"`
	StuckBatchAge time.Duration  `mapstructure:"stuck_batch_age"`

	Checkout CheckoutConfig `mapstructure:"checkout"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type CheckoutConfig struct {
	Session    time.Duration `mapstructure:"session"`
	WarnBefore time.Duration `mapstructure:"warn_before"`
	// PaymentWindows bounds how long a generated payment code stays valid,
	// per payment method.
	PaymentWindows          map[string]time.Duration `mapstructure:"payment_windows"`
	AllowFailedToPending    bool                     `mapstructure:"allow_failed_to_pending"`
	AllowFailedToProcessing bool                     `mapstructure:"allow_failed_to_processing"`
	MaxSessions             int                      `mapstructure:"max_sessions"`
	// RetainFinished keeps finished sessions readable before they are dropped.
	RetainFinished time.Duration `mapstructure:"retain_finished"`
}

type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "settlement.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("fees_seed", "testdata/fees.json")
	v.SetDefault("fee_cache_ttl", 30*time.Second)
	v.SetDefault("min_withdrawal_amount", "50.00")
	v.SetDefault("min_anticipation_amount", "50.00")
	v.SetDefault("hold_days.card", 30)
	v.SetDefault("hold_days.pix", 0)
	v.SetDefault("hold_days.boleto", 2)
	v.SetDefault("stuck_batch_age", 15*time.Minute)
	v.SetDefault("checkout.session", 15*time.Minute)
	v.SetDefault("checkout.warn_before", 2*time.Minute)
	v.SetDefault("checkout.payment_windows.pix", 5*time.Minute)
	v.SetDefault("checkout.payment_windows.boleto", 72*time.Hour)
	v.SetDefault("checkout.allow_failed_to_pending", true)
	v.SetDefault("checkout.allow_failed_to_processing", true)
	v.SetDefault("checkout.max_sessions", 10000)
	v.SetDefault("checkout.retain_finished", 10*time.Minute)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", 10*time.Second)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply. Nested keys map to environment
// variables with dots replaced by underscores, e.g. PROVIDER_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.MinWithdrawal, err = currency.Parse(c.MinWithdrawalRaw); err != nil {
		return fmt.Errorf("min_withdrawal_amount: %w", err)
	}
	if c.MinAnticipation, err = currency.Parse(c.MinAnticipationRaw); err != nil {
		return fmt.Errorf("min_anticipation_amount: %w", err)
	}
	if c.MinWithdrawal.IsNegative() || c.MinAnticipation.IsNegative() {
		return fmt.Errorf("minimum amounts must not be negative")
	}
	for method, days := range c.HoldDays {
		if days < 0 {
			return fmt.Errorf("hold_days.%s must not be negative", method)
		}
	}
	if c.Checkout.Session <= 0 {
		return fmt.Errorf("checkout.session must be positive")
	}
	if c.Checkout.WarnBefore < 0 || c.Checkout.WarnBefore >= c.Checkout.Session {
		return fmt.Errorf("checkout.warn_before must be shorter than checkout.session")
	}
	if c.Checkout.MaxSessions < 0 {
		return fmt.Errorf("checkout.max_sessions must not be negative")
	}
	return nil
}

// LedgerRules converts the balance settings for the ledger.
func (c *Config) LedgerRules() ledger.Rules {
	hold := make(map[domain.PaymentMethod]int, len(c.HoldDays))
	for method, days := range c.HoldDays {
		hold[domain.PaymentMethod(method)] = days
	}
	return ledger.Rules{MinimumWithdrawal: c.MinWithdrawal, HoldDays: hold}
}

// CheckoutRegistry converts the checkout settings. notify may be nil.
func (c *Config) CheckoutRegistry(notify func(checkout.Notification)) checkout.RegistryConfig {
	windows := make(map[domain.PaymentMethod]time.Duration, len(c.Checkout.PaymentWindows))
	for method, d := range c.Checkout.PaymentWindows {
		windows[domain.PaymentMethod(method)] = d
	}
	return checkout.RegistryConfig{
		SessionDuration:  c.Checkout.Session,
		WarnBefore:       c.Checkout.WarnBefore,
		PaymentDurations: windows,
		Policy: checkout.Policy{
			AllowFailedToPending:    c.Checkout.AllowFailedToPending,
			AllowFailedToProcessing: c.Checkout.AllowFailedToProcessing,
		},
		Notify:      notify,
		MaxSessions: c.Checkout.MaxSessions,
		Retain:      c.Checkout.RetainFinished,
	}
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

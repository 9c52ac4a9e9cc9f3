package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.FeeCacheTTL)
	assert.True(t, cfg.MinWithdrawal.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.MinAnticipation.Equal(decimal.NewFromInt(50)))

	rules := cfg.LedgerRules()
	assert.Equal(t, 30, rules.HoldDays[domain.MethodCard])
	assert.Equal(t, 2, rules.HoldDays[domain.MethodBoleto])

	reg := cfg.CheckoutRegistry(nil)
	assert.Equal(t, 15*time.Minute, reg.SessionDuration)
	assert.Equal(t, 5*time.Minute, reg.PaymentDurations[domain.MethodPix])
	assert.True(t, reg.Policy.AllowFailedToPending)
	assert.Equal(t, 10000, reg.MaxSessions)
	assert.Equal(t, 10*time.Minute, reg.Retain)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
min_withdrawal_amount: "25.50"
hold_days:
  card: 14
checkout:
  session: 10m
  allow_failed_to_processing: false
provider:
  base_url: http://provider.local
`), 0o644))
	t.Setenv("PORT", "7070")
	t.Setenv("PROVIDER_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.True(t, cfg.MinWithdrawal.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, 14, cfg.HoldDays["card"])
	assert.Equal(t, 10*time.Minute, cfg.Checkout.Session)
	assert.False(t, cfg.Checkout.AllowFailedToProcessing)
	assert.Equal(t, "http://provider.local", cfg.Provider.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"fractional cents", map[string]string{"MIN_WITHDRAWAL_AMOUNT": "10.001"}},
		{"negative minimum", map[string]string{"MIN_ANTICIPATION_AMOUNT": "-1"}},
		{"warning outlives session", map[string]string{"CHECKOUT_WARN_BEFORE": "20m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

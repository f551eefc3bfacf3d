package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "EUR", cfg.BaseCurrency)
	assert.Equal(t, 2, cfg.LookbackMonths)
	assert.Equal(t, []string{"USD", "GBP", "CHF", "JPY"}, cfg.QuoteSymbols)
	assert.Contains(t, cfg.DatabasePath(), "forex_data.db")
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.Remote.Enabled())
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BASE_CURRENCY", "usd")
	t.Setenv("QUOTE_CURRENCIES", " eur, gbp ")
	t.Setenv("LOOKBACK_MONTHS", "3")
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("EMAIL_ADDRESS", "bot@example.com")
	t.Setenv("RECIPIENT_EMAIL", "ops@example.com")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_KEY", "service-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, []string{"EUR", "GBP"}, cfg.QuoteSymbols)
	assert.Equal(t, 3, cfg.LookbackMonths)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.Remote.Enabled())
	assert.Equal(t, "forex_rates", cfg.Remote.Table)
}

func TestValidateRejectsBaseAsQuote(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BASE_CURRENCY", "EUR")
	t.Setenv("QUOTE_CURRENCIES", "USD,EUR")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveLookback(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LOOKBACK_MONTHS", "-1")

	_, err := Load()
	assert.Error(t, err)
}

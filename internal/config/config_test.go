package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "database:\n  path: "+filepath.Join(dir, "db", "test.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.TaxRate().Equal(decimal.RequireFromString("0.18")))
	assert.Equal(t, "Africa/Dar_es_Salaam", cfg.Booking.Timezone)
	assert.True(t, cfg.AutoConfirm())
	assert.Equal(t, 20, cfg.Booking.MaxReferenceAttempts)
	assert.Equal(t, 10, cfg.Booking.MaxAdults)
	assert.Equal(t, 6, cfg.Booking.MaxChildren)
	assert.Equal(t, "1 0 1 * *", cfg.Audit.Schedule)
	assert.Equal(t, 24*time.Hour, cfg.ReminderLead())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAIMA_TEST_API_KEY", "secret-key")
	t.Setenv("DAIMA_TEST_TAX", "0.15")

	path := writeFile(t, dir, "config.yaml", `
server:
  api_key: ${DAIMA_TEST_API_KEY}
booking:
  tax_rate: "${DAIMA_TEST_TAX}"
  auto_confirm: false
database:
  path: `+filepath.Join(dir, "test.db")+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Server.APIKey)
	assert.True(t, cfg.TaxRate().Equal(decimal.RequireFromString("0.15")))
	assert.False(t, cfg.AutoConfirm())
}

func TestLoad_ZeroTaxRate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "booking:\n  tax_rate: \"0\"\ndatabase:\n  path: "+filepath.Join(dir, "test.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.TaxRate().IsZero())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad tax rate", "booking:\n  tax_rate: abc\n"},
		{"tax rate too high", "booking:\n  tax_rate: \"1.5\"\n"},
		{"unknown timezone", "booking:\n  timezone: Mars/Olympus\n"},
		{"telegram without chats", "notifications:\n  telegram:\n    bot_token: abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "config.yaml", tt.body+"database:\n  path: "+filepath.Join(dir, "x.db")+"\n")
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

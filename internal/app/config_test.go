package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BILLING_LOCATION", "Africa/Dar_es_Salaam")
	t.Setenv("EXPENSE_ACCOUNTS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 10, cfg.BillingDefaultDueDays)
	require.Equal(t, 10*time.Minute, cfg.BillingLockTTL)
	require.Equal(t, "Africa/Dar_es_Salaam", cfg.Location().String())

	roles := cfg.AccountRoles()
	require.Equal(t, "1100", roles.Receivable)
	require.Equal(t, "1020", roles.MobileMoney)
	require.Empty(t, roles.Expenses)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BILLING_LOCATION", "UTC")
	t.Setenv("BILLING_DEFAULT_DUE_DAYS", "14")
	t.Setenv("ACCOUNT_BANK_CODE", "1015")
	t.Setenv("EXPENSE_ACCOUNTS", "Fuel:5060, rent:5020")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 14, cfg.BillingDefaultDueDays)

	roles := cfg.AccountRoles()
	require.Equal(t, "1015", roles.Bank)
	require.Equal(t, map[string]string{"fuel": "5060", "rent": "5020"}, roles.Expenses)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogFormat:             "json",
			BillingLocation:       "UTC",
			BillingDefaultDueDays: 10,
			BillingLockTTL:        time.Minute,
			RateLimitPerMinute:    60,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid"},
		{name: "bad location", mutate: func(c *Config) { c.BillingLocation = "Mars/Olympus" }, errMsg: "BILLING_LOCATION"},
		{name: "zero due days", mutate: func(c *Config) { c.BillingDefaultDueDays = 0 }, errMsg: "BILLING_DEFAULT_DUE_DAYS"},
		{name: "zero lock ttl", mutate: func(c *Config) { c.BillingLockTTL = 0 }, errMsg: "BILLING_LOCK_TTL"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimitPerMinute = -1 }, errMsg: "RATE_LIMIT_PER_MINUTE"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errMsg: "LOG_FORMAT"},
		{name: "expense map", mutate: func(c *Config) { c.ExpenseAccounts = "rent" }, errMsg: "EXPENSE_ACCOUNTS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	var cfg *Config
	require.Equal(t, time.UTC, cfg.Location())
	require.False(t, cfg.IsProduction())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PROVIDERS", " MTN , pawapay")
	t.Setenv("RECONCILE_STALE_AFTER", "2m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"mtn", "pawapay"}, cfg.Providers)
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.StaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Reconcile.FailAfter)
	assert.Equal(t, 10*time.Second, cfg.ProviderHTTP.Timeout)
	assert.True(t, cfg.ProviderEnabled("mtn"))
	assert.False(t, cfg.ProviderEnabled("orange"))
}

func validConfig() *Config {
	return &Config{
		Providers: []string{"mtn", "orange", "pawapay"},
		Database:  DatabaseConfig{Driver: "postgres"},
		MTN: MTNConfig{
			CollectionSubscriptionKey:   "a",
			CollectionAPIUser:           "b",
			CollectionAPIKey:            "c",
			DisbursementSubscriptionKey: "d",
			DisbursementAPIUser:         "e",
			DisbursementAPIKey:          "f",
		},
		Orange: OrangeConfig{
			ClientID:          "id",
			ClientSecret:      "secret",
			AuthToken:         "auth",
			ChannelUserMSISDN: "699000000",
			PIN:               "0000",
		},
		PawaPay:   PawaPayConfig{APIToken: "tok"},
		Reconcile: ReconcileConfig{StaleAfter: 5 * time.Minute, FailAfter: 24 * time.Hour},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.PawaPay.APIToken = ""
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "pawapay")

	cfg = validConfig()
	cfg.Providers = []string{"mtn"}
	cfg.Orange = OrangeConfig{}
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Providers = []string{"airtel"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = validConfig()
	cfg.Reconcile.FailAfter = time.Minute
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

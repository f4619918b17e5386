package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.DatabaseURL = "postgres://localhost/outbox"
	return cfg
}

func TestValidate_DefaultsArePlusDatabaseURLValid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RequiresDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RangeChecks(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"worker_count zero", func(c *Config) { c.WorkerCount = 0 }, true},
		{"batch_size zero", func(c *Config) { c.BatchSize = 0 }, true},
		{"poll_interval zero", func(c *Config) { c.PollInterval = 0 }, true},
		{"backoff_max less than base", func(c *Config) { c.BackoffMax = c.BackoffBase - time.Millisecond }, true},
		{"backoff_base zero", func(c *Config) { c.BackoffBase = 0 }, true},
		{"max_retries negative", func(c *Config) { c.MaxRetries = -1 }, true},
		{"max_retries zero is allowed", func(c *Config) { c.MaxRetries = 0 }, false},
		{"zombie_threshold zero", func(c *Config) { c.ZombieThreshold = 0 }, true},
		{"submit_timeout zero", func(c *Config) { c.SubmitTimeout = 0 }, true},
		{"acquire_timeout zero", func(c *Config) { c.AcquireTimeout = 0 }, true},
		{"acquire_timeout over cap", func(c *Config) { c.AcquireTimeout = 4 * time.Second }, true},
		{"max_connections below worker_count", func(c *Config) { c.WorkerCount = 5; c.MaxConnections = 4 }, true},
		{"backoff_jitter negative", func(c *Config) { c.BackoffJitter = -time.Millisecond }, true},
		{"backoff_jitter zero is allowed", func(c *Config) { c.BackoffJitter = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestLoad_DashedFlagsReachTheStruct reproduces cmd/ledgerbridged's own
// flag registration and binding (dash-named pflags, BindPFlags) to catch
// the class of bug where a flag value never makes it into Config because
// its viper key doesn't match its mapstructure tag.
func TestLoad_DashedFlagsReachTheStruct(t *testing.T) {
	v := viper.New()
	pf := pflag.NewFlagSet("ledgerbridged", pflag.ContinueOnError)

	d := Defaults()
	pf.String("database-url", "", "")
	pf.Int("worker-count", d.WorkerCount, "")
	pf.Duration("backoff-jitter", d.BackoffJitter, "")
	pf.Int("max-connections", d.MaxConnections, "")

	BindPFlags(v, pf)

	require.NoError(t, pf.Set("database-url", "postgres://localhost/outbox"))
	require.NoError(t, pf.Set("worker-count", "7"))
	require.NoError(t, pf.Set("max-connections", "20"))
	require.NoError(t, pf.Set("backoff-jitter", "500ms"))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/outbox", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.WorkerCount)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffJitter)
}

// Package config loads and validates the dispatcher's configuration knobs
// via viper, bound to flags registered by cmd/ledgerbridged.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the recognized set of options, with the recommended defaults
// baked into Load.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`

	WorkerCount     int           `mapstructure:"worker_count"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	BackoffJitter   time.Duration `mapstructure:"backoff_jitter"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ZombieThreshold time.Duration `mapstructure:"zombie_threshold"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	EnableWorker    bool          `mapstructure:"enable_worker"`

	MaxConnections int           `mapstructure:"max_connections"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// Defaults returns a Config populated with recommended values for every
// knob except DatabaseURL, which the caller must always supply.
func Defaults() Config {
	return Config{
		WorkerCount:     1,
		BatchSize:       10,
		PollInterval:    time.Second,
		BackoffBase:     time.Second,
		BackoffMax:      5 * time.Minute,
		BackoffJitter:   250 * time.Millisecond,
		MaxRetries:      10,
		ZombieThreshold: 5 * time.Minute,
		SubmitTimeout:   30 * time.Second,
		EnableWorker:    true,
		MaxConnections:  20,
		AcquireTimeout:  3 * time.Second,
		LogLevel:        "info",
		MetricsAddr:     ":9090",
	}
}

// BindPFlags binds every dash-named flag in pf (e.g. "database-url") to
// the underscore-named viper key its mapstructure tag expects
// ("database_url"). viper.BindPFlags alone registers a flag only under
// its own literal name, so a bare BindPFlags call here would leave every
// flag value unreachable by Unmarshal; cmd/ledgerbridged must call this
// instead of viper's own BindPFlags.
func BindPFlags(v *viper.Viper, pf *pflag.FlagSet) {
	pf.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		_ = v.BindPFlag(key, f)
	})
}

// Load reads configuration from v (already bound to flags/env by the
// caller) on top of Defaults, then validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the ranges every knob must satisfy for the dispatcher
// to run: worker/batch counts positive, max_retries and backoff_jitter
// non-negative, every other duration positive, and the connection pool
// large enough to serve every worker.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: database_url is required")
	}
	if c.WorkerCount < 1 {
		return errors.New("config: worker_count must be >= 1")
	}
	if c.BatchSize < 1 {
		return errors.New("config: batch_size must be >= 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be > 0")
	}
	if c.BackoffBase <= 0 || c.BackoffMax <= 0 || c.BackoffMax < c.BackoffBase {
		return errors.New("config: backoff_max must be >= backoff_base, both > 0")
	}
	if c.BackoffJitter < 0 {
		return errors.New("config: backoff_jitter must be >= 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if c.ZombieThreshold <= 0 {
		return errors.New("config: zombie_threshold must be > 0")
	}
	if c.SubmitTimeout <= 0 {
		return errors.New("config: submit_timeout must be > 0")
	}
	if c.AcquireTimeout <= 0 || c.AcquireTimeout > 3*time.Second {
		return errors.New("config: acquire_timeout must be > 0 and bounded (recommended 3s)")
	}
	if c.MaxConnections < c.WorkerCount {
		return errors.New("config: max_connections must be >= worker_count")
	}
	return nil
}

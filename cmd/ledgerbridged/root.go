package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerbridge/outboxcore/internal/config"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LEDGERBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "ledgerbridged",
		Short:         "Transactional outbox core bridging a relational database to a blockchain ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	d := config.Defaults()

	pf := root.PersistentFlags()
	pf.String("database-url", "", "Postgres connection string")
	pf.Int("worker-count", d.WorkerCount, "number of dispatcher workers")
	pf.Int("batch-size", d.BatchSize, "entries claimed per poll cycle")
	pf.Duration("poll-interval", d.PollInterval, "sleep between empty poll cycles")
	pf.Duration("backoff-base", d.BackoffBase, "exponential backoff base delay")
	pf.Duration("backoff-max", d.BackoffMax, "exponential backoff max delay")
	pf.Duration("backoff-jitter", d.BackoffJitter, "random jitter added on top of the exponential delay")
	pf.Int("max-retries", d.MaxRetries, "retry attempts before an entry is marked failed")
	pf.Duration("zombie-threshold", d.ZombieThreshold, "age after which a Processing entry is reclaimed")
	pf.Duration("submit-timeout", d.SubmitTimeout, "per-call timeout for LedgerClient.Submit")
	pf.Bool("enable-worker", d.EnableWorker, "run the dispatcher worker pool")
	pf.Int("max-connections", d.MaxConnections, "Postgres connection pool size")
	pf.Duration("acquire-timeout", d.AcquireTimeout, "timeout for the initial database ping on connect")
	pf.String("log-level", d.LogLevel, "zerolog level: debug|info|warn|error")
	pf.String("metrics-addr", d.MetricsAddr, "address to serve /metrics on")

	config.BindPFlags(v, pf)

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newMigrateCmd(v))
	return root
}

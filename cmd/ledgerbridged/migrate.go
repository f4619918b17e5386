package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerbridge/outboxcore/internal/config"
	"github.com/ledgerbridge/outboxcore/internal/migrate"
	"github.com/ledgerbridge/outboxcore/internal/store/postgres"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply outbox schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := postgres.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			return migrate.Apply(ctx, pool, os.DirFS(dir))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing versioned .sql files")
	return cmd
}

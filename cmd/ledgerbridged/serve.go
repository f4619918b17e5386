package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerbridge/outboxcore/internal/config"
	"github.com/ledgerbridge/outboxcore/internal/dispatcher"
	"github.com/ledgerbridge/outboxcore/internal/ledger/mock"
	"github.com/ledgerbridge/outboxcore/internal/store/postgres"
	"github.com/ledgerbridge/outboxcore/internal/telemetry"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher worker pool until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
}

func runServe(parent context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log := telemetry.NewLogger(cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	// NOTE: wiring a real RPC-based ledger.Client (signing, blockhash
	// fetch, submission) is out of this core's scope; the mock here
	// stands in for whatever production LedgerClient the surrounding
	// service supplies.
	client := &mock.Client{Default: mock.AlwaysRecoverable("", "no production ledger client configured")}

	store := postgres.New(pool)
	d := dispatcher.New(store, client, cfg, log, metrics)

	log.Info().Int("workers", cfg.WorkerCount).Msg("dispatcher starting")
	d.Run(ctx)
	log.Info().Msg("dispatcher stopped, shutting down metrics server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}

// Package dispatcher implements the background worker pool that drains
// the outbox: claiming leased batches, invoking the LedgerClient, and
// advancing each entry through the sticky-blockhash retry state machine.
// Workers share no in-memory state; all coordination flows through the
// Store.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerbridge/outboxcore/internal/config"
	"github.com/ledgerbridge/outboxcore/internal/ledger"
	"github.com/ledgerbridge/outboxcore/internal/store"
	"github.com/ledgerbridge/outboxcore/internal/telemetry"
)

// Clock abstracts time.Now so tests can drive the zombie-reclaim and
// retry-eligibility paths deterministically.
type Clock func() time.Time

// Dispatcher owns the worker pool. Construct with New, then call Run; Run
// blocks until ctx is canceled, at which point in-flight processEntry
// calls are allowed to finish before Run returns.
type Dispatcher struct {
	store   store.Store
	client  ledger.Client
	cfg     config.Config
	log     zerolog.Logger
	metrics *telemetry.Metrics
	clock   Clock
	backoff *Exponential

	// zombieEvery controls how many poll iterations elapse between
	// ReclaimZombies sweeps. Defaults to 30 (roughly every
	// 30 * PollInterval).
	zombieEvery int
}

// New constructs a Dispatcher. metrics may be nil (metrics become no-ops).
func New(s store.Store, c ledger.Client, cfg config.Config, log zerolog.Logger, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		store:       s,
		client:      c,
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		clock:       time.Now,
		backoff:     NewExponential(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffJitter),
		zombieEvery: 30,
	}
}

// SetClock overrides the dispatcher's notion of now, for deterministic
// tests of the retry/backoff/zombie-reclaim timing.
func (d *Dispatcher) SetClock(c Clock) {
	d.clock = c
}

func (d *Dispatcher) now() time.Time {
	if d.clock != nil {
		return d.clock()
	}
	return time.Now()
}

// Run spawns cfg.WorkerCount goroutines and blocks until ctx is canceled
// and every worker has drained its in-flight batch.
func (d *Dispatcher) Run(ctx context.Context) {
	if !d.cfg.EnableWorker {
		d.log.Info().Msg("worker disabled by configuration, not starting dispatcher")
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.WorkerCount; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			d.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()
}

// runWorker claims a batch, processes each entry, sleeps if the batch was
// empty, and periodically reclaims zombies. No state is shared with other
// workers beyond the Store.
func (d *Dispatcher) runWorker(ctx context.Context, workerID int) {
	log := d.log.With().Int("worker", workerID).Logger()
	log.Info().Msg("dispatcher worker starting")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher worker stopping")
			return
		default:
		}

		entries, err := d.store.Claim(ctx, d.cfg.BatchSize, d.now())
		if err != nil {
			log.Error().Err(err).Msg("claim failed, will retry next poll")
			entries = nil
		}
		if d.metrics != nil && len(entries) > 0 {
			d.metrics.Claimed.Add(float64(len(entries)))
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				// Shutdown requested mid-batch: abandon remaining
				// entries. They stay Processing and are recovered by a
				// future zombie sweep.
				break
			}
			d.processEntry(ctx, entry)
		}

		iterations++
		if iterations%d.zombieEvery == 0 {
			d.sweepZombies(ctx, log)
		}

		if len(entries) == 0 {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher worker stopping")
				return
			case <-ticker.C:
			}
		}
	}
}

func (d *Dispatcher) sweepZombies(ctx context.Context, log zerolog.Logger) {
	reclaimed, err := d.store.ReclaimZombies(ctx, d.cfg.ZombieThreshold, d.now())
	if err != nil {
		log.Error().Err(err).Msg("reclaim zombies failed")
		return
	}
	if reclaimed > 0 {
		log.Warn().Int("count", reclaimed).Msg("reclaimed zombie entries")
	}
	if d.metrics != nil && reclaimed > 0 {
		d.metrics.ZombiesReaped.Add(float64(reclaimed))
	}
}

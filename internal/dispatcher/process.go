package dispatcher

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ledgerbridge/outboxcore/internal/ledger"
	"github.com/ledgerbridge/outboxcore/internal/outbox"
	"github.com/ledgerbridge/outboxcore/internal/store"
)

// processEntry submits a single claimed entry and advances it according
// to the outcome: Success completes it, BlockhashExpired or Recoverable
// reschedule it (clearing or preserving the pinned blockhash as
// appropriate) unless its retry budget is exhausted, in which case they
// fail it, and Unrecoverable fails it outright. It never panics on a
// LedgerClient error: the worker logs and moves on so one bad entry
// cannot take down the pool.
func (d *Dispatcher) processEntry(ctx context.Context, entry outbox.Entry) {
	submitCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := d.client.Submit(submitCtx, entry.Payload, entry.AttemptBlockhash)
	if d.metrics != nil {
		d.metrics.SubmitLatency.Observe(time.Since(start).Seconds())
	}

	log := d.log.With().Str("entry_id", entry.ID).Int("retry_count", entry.RetryCount).Logger()

	if err != nil {
		// The client itself errored rather than returning a classified
		// outcome (e.g. context deadline exceeded). Treat it the same as
		// a Recoverable error with no known blockhash: the safest
		// assumption when we cannot tell whether a blockhash was ever
		// obtained is to preserve whatever was already pinned.
		log.Warn().Err(err).Msg("ledger client returned an error, treating as recoverable")
		d.classifyAndReschedule(ctx, entry, entry.AttemptBlockhash, "recoverable", err.Error())
		return
	}

	switch outcome.Kind {
	case ledger.Success:
		if cerr := d.store.Complete(ctx, entry.ID, outcome.Signature); cerr != nil {
			log.Error().Err(cerr).Msg("complete failed; entry remains Processing for zombie reclaim")
			return
		}
		if d.metrics != nil {
			d.metrics.Completed.Inc()
		}
		log.Info().Str("signature", outcome.Signature).Msg("entry completed")

	case ledger.BlockhashExpired:
		// The expired blockhash proves the original attempt cannot have
		// landed; clear the pin so the next attempt fetches a fresh one.
		d.classifyAndReschedule(ctx, entry, nil, "blockhash_expired", outcome.Reason)

	case ledger.Recoverable:
		// BlockhashUsed may be empty if the failure happened before a
		// blockhash was ever fetched; preserve whatever was already
		// pinned in that case.
		pin := entry.AttemptBlockhash
		if outcome.BlockhashUsed != "" {
			used := outcome.BlockhashUsed
			pin = &used
		}
		d.classifyAndReschedule(ctx, entry, pin, "recoverable", outcome.Reason)

	case ledger.Unrecoverable:
		d.fail(ctx, entry, outcome.Reason)

	default:
		d.fail(ctx, entry, "unknown ledger outcome kind")
	}
}

// classifyAndReschedule applies the retry-budget check before
// rescheduling: an entry that has exhausted max_retries is failed
// instead of rescheduled again.
func (d *Dispatcher) classifyAndReschedule(ctx context.Context, entry outbox.Entry, pin *string, label, reason string) {
	if entry.RetryCount >= d.cfg.MaxRetries {
		d.fail(ctx, entry, errors.Wrapf(store.ErrRetryBudgetExhausted, "after %d attempts: %s", entry.RetryCount, reason).Error())
		return
	}
	d.reschedule(ctx, entry, pin, label, reason)
}

func (d *Dispatcher) reschedule(ctx context.Context, entry outbox.Entry, pin *string, label, reason string) {
	delay := d.backoff.DurationAt(entry.RetryCount)
	now := d.now()
	if err := d.store.Reschedule(ctx, entry.ID, now, delay, pin); err != nil {
		d.log.Error().Err(err).Str("entry_id", entry.ID).Msg("reschedule failed; entry remains Processing for zombie reclaim")
		return
	}
	if d.metrics != nil {
		d.metrics.Rescheduled.WithLabelValues(label).Inc()
	}
	d.log.Info().Str("entry_id", entry.ID).Dur("delay", delay).Str("reason", reason).Msg("entry rescheduled")
}

func (d *Dispatcher) fail(ctx context.Context, entry outbox.Entry, reason string) {
	if err := d.store.Fail(ctx, entry.ID, reason); err != nil {
		d.log.Error().Err(err).Str("entry_id", entry.ID).Msg("fail failed; entry remains Processing for zombie reclaim")
		return
	}
	if d.metrics != nil {
		d.metrics.Failed.Inc()
	}
	d.log.Warn().Str("entry_id", entry.ID).Str("reason", reason).Msg("entry failed terminally")
}

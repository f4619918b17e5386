// Package mock implements a deterministic, scriptable ledger.Client for
// tests. Every collaborating outbox implementation in the corpus ships a
// fake of its external delivery dependency; this is this core's.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ledgerbridge/outboxcore/internal/ledger"
)

// Responder returns the Outcome (and optional error) for a given call. It
// receives the pinned blockhash the dispatcher supplied so tests can
// assert the sticky-blockhash contract: the same pin must be echoed back
// on every retry until it changes for cause.
type Responder func(ctx context.Context, payload json.RawMessage, pinnedBlockhash *string, callNum int) (ledger.Outcome, error)

// Client is a thread-safe mock. Script a sequence of Responders with
// Queue, or set a Default used once the queue drains.
type Client struct {
	mu      sync.Mutex
	queue   []Responder
	Default Responder
	calls   []Call
}

// Call records one invocation for post-hoc assertions.
type Call struct {
	Payload         json.RawMessage
	PinnedBlockhash *string
}

// Queue appends a scripted response, returned in FIFO order.
func (c *Client) Queue(r Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, r)
}

// Calls returns a snapshot of recorded invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Submit implements ledger.Client.
func (c *Client) Submit(ctx context.Context, payload json.RawMessage, pinnedBlockhash *string) (ledger.Outcome, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Payload: payload, PinnedBlockhash: pinnedBlockhash})
	callNum := len(c.calls)

	var r Responder
	if len(c.queue) > 0 {
		r = c.queue[0]
		c.queue = c.queue[1:]
	} else {
		r = c.Default
	}
	c.mu.Unlock()

	if r == nil {
		return ledger.Outcome{Kind: ledger.Unrecoverable, Reason: "mock: no responder configured"}, nil
	}
	return r(ctx, payload, pinnedBlockhash, callNum)
}

// AlwaysSucceed returns a Responder that succeeds with the given
// signature. BlockhashUsed is the caller's pin when one was sent (as the
// Client contract requires) and the given blockhash otherwise.
func AlwaysSucceed(signature, blockhash string) Responder {
	return func(_ context.Context, _ json.RawMessage, pinned *string, _ int) (ledger.Outcome, error) {
		used := blockhash
		if pinned != nil {
			used = *pinned
		}
		return ledger.Outcome{Kind: ledger.Success, Signature: signature, BlockhashUsed: used}, nil
	}
}

// AlwaysRecoverable returns a Responder that reports a recoverable error
// (simulating a timeout after a blockhash was obtained). BlockhashUsed is
// the caller's pin when one was sent and the given blockhash otherwise.
func AlwaysRecoverable(blockhash, reason string) Responder {
	return func(_ context.Context, _ json.RawMessage, pinned *string, _ int) (ledger.Outcome, error) {
		used := blockhash
		if pinned != nil {
			used = *pinned
		}
		return ledger.Outcome{Kind: ledger.Recoverable, BlockhashUsed: used, Reason: reason}, nil
	}
}

// AlwaysExpired returns a Responder that reports BlockhashExpired.
func AlwaysExpired(reason string) Responder {
	return func(_ context.Context, _ json.RawMessage, _ *string, _ int) (ledger.Outcome, error) {
		return ledger.Outcome{Kind: ledger.BlockhashExpired, Reason: reason}, nil
	}
}

// AlwaysUnrecoverable returns a Responder that reports a permanent
// failure.
func AlwaysUnrecoverable(reason string) Responder {
	return func(_ context.Context, _ json.RawMessage, _ *string, _ int) (ledger.Outcome, error) {
		return ledger.Outcome{Kind: ledger.Unrecoverable, Reason: reason}, nil
	}
}

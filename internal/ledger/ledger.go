// Package ledger defines the abstract submission contract the dispatcher
// depends on. Any implementation — real RPC client, mock, alternative
// ledger — satisfying Client is substitutable.
package ledger

import (
	"context"
	"encoding/json"
)

// OutcomeKind classifies a submission result into the buckets the
// dispatcher's state machine switches on.
type OutcomeKind int

const (
	// Success: the ledger accepted the transaction and returned a
	// signature.
	Success OutcomeKind = iota
	// BlockhashExpired: the pinned blockhash is stale; the original
	// transaction provably did not land.
	BlockhashExpired
	// Recoverable: a transient failure. BlockhashUsed is populated if a
	// blockhash was obtained before the failure (timeout, network error,
	// RPC failure after signing) and empty if the failure happened before
	// a blockhash was ever fetched.
	Recoverable
	// Unrecoverable: a permanent failure (malformed payload, signing
	// failure) that should not be retried.
	Unrecoverable
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case BlockhashExpired:
		return "blockhash_expired"
	case Recoverable:
		return "recoverable"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of a Submit call.
type Outcome struct {
	Kind OutcomeKind

	// Signature is set only when Kind == Success.
	Signature string

	// BlockhashUsed carries whatever blockhash the client actually used
	// to build and sign the transaction, whether or not submission
	// succeeded. Empty means no blockhash was ever obtained.
	BlockhashUsed string

	// Reason is a human-readable classification detail, recorded on
	// reschedule/fail for operator visibility.
	Reason string
}

// Client is the core's only dependency on the blockchain side. If
// pinnedBlockhash is non-nil, implementations must reconstruct and sign
// the transaction against that exact blockhash, producing a
// byte-identical, signature-identical request to any prior attempt with
// the same blockhash. If nil, implementations fetch a fresh blockhash.
type Client interface {
	Submit(ctx context.Context, payload json.RawMessage, pinnedBlockhash *string) (Outcome, error)
}

// Command ledgerbridged runs the transactional outbox dispatcher: it
// claims leased batches from Postgres, submits them through a
// LedgerClient, and advances each entry through the sticky-blockhash
// retry state machine. HTTP/API framing, health endpoints, and the ledger
// RPC client's cryptographic internals live outside this binary (spec
// section 1, Out of scope); this command wires only the core.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package mock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbridge/outboxcore/internal/ledger"
)

func TestClient_QueueDrainsBeforeDefault(t *testing.T) {
	c := &Client{Default: AlwaysUnrecoverable("fallback")}
	c.Queue(AlwaysRecoverable("hash-1", "timeout"))
	c.Queue(AlwaysSucceed("sig-1", "hash-1"))

	out1, err := c.Submit(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Recoverable, out1.Kind)

	out2, err := c.Submit(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Success, out2.Kind)

	out3, err := c.Submit(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Unrecoverable, out3.Kind, "queue exhausted, falls back to Default")
}

func TestClient_NoResponderConfiguredIsUnrecoverable(t *testing.T) {
	c := &Client{}
	out, err := c.Submit(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Unrecoverable, out.Kind)
}

func TestClient_RecordsCallsWithPinnedBlockhash(t *testing.T) {
	c := &Client{Default: AlwaysSucceed("sig-1", "hash-1")}
	pin := "pinned-hash"

	_, err := c.Submit(context.Background(), json.RawMessage(`{"a":1}`), &pin)
	require.NoError(t, err)

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, json.RawMessage(`{"a":1}`), calls[0].Payload)
	require.NotNil(t, calls[0].PinnedBlockhash)
	assert.Equal(t, pin, *calls[0].PinnedBlockhash)
}

func TestAlwaysSucceed_EchoesPinnedBlockhashWhenPresent(t *testing.T) {
	r := AlwaysSucceed("sig-1", "fresh-hash")
	pin := "sticky-hash"

	out, err := r(context.Background(), json.RawMessage(`{}`), &pin, 1)
	require.NoError(t, err)
	assert.Equal(t, "sticky-hash", out.BlockhashUsed)
}

func TestAlwaysSucceed_UsesFreshBlockhashWhenNoPin(t *testing.T) {
	r := AlwaysSucceed("sig-1", "fresh-hash")

	out, err := r(context.Background(), json.RawMessage(`{}`), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh-hash", out.BlockhashUsed)
}

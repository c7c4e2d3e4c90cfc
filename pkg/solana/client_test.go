package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharemint-core/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Chain.RPCURL = srv.URL
	cfg.Chain.Commitment = "confirmed"
	cfg.Chain.SubmitTimeout = 5 * time.Second
	cfg.Chain.ConfirmInterval = 10 * time.Millisecond
	return NewClient(cfg)
}

func rpcReply(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func TestClientSubmit(t *testing.T) {
	var gotMethod string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMethod = req.Method
		rpcReply(w, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb")
	})

	sig, err := client.Submit(context.Background(), &SignedTransfer{
		Instruction: TransferInstruction{From: "a", To: "b", Lamports: 1, Reference: "r"},
		Signature:   "sig",
	})
	require.NoError(t, err)
	require.Equal(t, "sendTransaction", gotMethod)
	require.Equal(t, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb", sig)
}

func TestClientSubmitRPCError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32002, "message": "transaction simulation failed"},
		})
	})

	_, err := client.Submit(context.Background(), &SignedTransfer{
		Instruction: TransferInstruction{From: "a", To: "b", Lamports: 1, Reference: "r"},
		Signature:   "sig",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "transaction simulation failed")
}

func TestClientConfirm(t *testing.T) {
	t.Run("confirms after pending polls", func(t *testing.T) {
		var polls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if polls.Add(1) < 3 {
				rpcReply(w, map[string]any{"value": []any{nil}})
				return
			}
			rpcReply(w, map[string]any{"value": []any{
				map[string]any{"confirmationStatus": "finalized", "err": nil},
			}})
		})

		status, err := client.Confirm(context.Background(), "sig")
		require.NoError(t, err)
		require.Equal(t, StatusConfirmed, status)
		require.GreaterOrEqual(t, polls.Load(), int32(3))
	})

	t.Run("on-chain failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			rpcReply(w, map[string]any{"value": []any{
				map[string]any{"confirmationStatus": "confirmed", "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
			}})
		})

		status, err := client.Confirm(context.Background(), "sig")
		require.NoError(t, err)
		require.Equal(t, StatusFailed, status)
	})

	t.Run("deadline yields unknown", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			rpcReply(w, map[string]any{"value": []any{nil}})
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		status, err := client.Confirm(ctx, "sig")
		require.NoError(t, err)
		require.Equal(t, StatusUnknown, status)
	})

	t.Run("processed does not satisfy confirmed commitment", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			rpcReply(w, map[string]any{"value": []any{
				map[string]any{"confirmationStatus": "processed", "err": nil},
			}})
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		status, err := client.Confirm(ctx, "sig")
		require.NoError(t, err)
		require.Equal(t, StatusUnknown, status)
	})
}

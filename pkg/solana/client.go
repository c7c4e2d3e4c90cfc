package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"sharemint-core/pkg/config"
)

var Module = fx.Module("solana",
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(Gateway))),
	),
)

// ConfirmationStatus is the terminal (or pending) state of a submitted
// transfer as reported by the chain gateway.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFailed    ConfirmationStatus = "failed"
	StatusUnknown   ConfirmationStatus = "unknown"
)

// Gateway submits signed transfers and reports their confirmation status.
type Gateway interface {
	// Submit forwards a signed transfer and returns the transaction signature
	// the gateway tracks it under.
	Submit(ctx context.Context, transfer *SignedTransfer) (string, error)

	// Confirm polls the gateway until the signature reaches a terminal state
	// or ctx expires. A ctx deadline yields StatusUnknown with a nil error:
	// the transfer may still land, so callers must not resubmit.
	Confirm(ctx context.Context, signature string) (ConfirmationStatus, error)
}

// Client talks JSON-RPC to a chain gateway node.
type Client struct {
	url        string
	commitment string
	interval   time.Duration
	http       *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		url:        cfg.Chain.RPCURL,
		commitment: cfg.Chain.Commitment,
		interval:   cfg.Chain.ConfirmInterval,
		http: &http.Client{
			Timeout: cfg.Chain.SubmitTimeout,
		},
	}
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, raw)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode gateway result: %w", err)
		}
	}
	return nil
}

func (c *Client) Submit(ctx context.Context, transfer *SignedTransfer) (string, error) {
	payload, err := json.Marshal(transfer)
	if err != nil {
		return "", err
	}

	var signature string
	err = c.call(ctx, "sendTransaction", []any{
		string(payload),
		map[string]any{"encoding": "json"},
	}, &signature)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	if signature == "" {
		return "", fmt.Errorf("gateway returned empty signature")
	}
	return signature, nil
}

type signatureStatus struct {
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

type signatureStatuses struct {
	Value []*signatureStatus `json:"value"`
}

func (c *Client) Confirm(ctx context.Context, signature string) (ConfirmationStatus, error) {
	interval := c.interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.status(ctx, signature)
		if err != nil {
			zap.L().Warn("signature status poll failed",
				zap.String("signature", signature),
				zap.Error(err),
			)
		} else if status != StatusPending {
			return status, nil
		}

		select {
		case <-ctx.Done():
			// confirmation window elapsed without a terminal answer
			return StatusUnknown, nil
		case <-ticker.C:
		}
	}
}

func (c *Client) status(ctx context.Context, signature string) (ConfirmationStatus, error) {
	var result signatureStatuses
	err := c.call(ctx, "getSignatureStatuses", []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}, &result)
	if err != nil {
		return StatusPending, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return StatusPending, nil
	}

	st := result.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	if c.reached(st.ConfirmationStatus) {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

// reached reports whether an observed per-signature status satisfies the
// configured commitment level.
func (c *Client) reached(observed string) bool {
	rank := map[string]int{
		"processed": 1,
		"confirmed": 2,
		"finalized": 3,
	}
	want, ok := rank[c.commitment]
	if !ok {
		want = rank["confirmed"]
	}
	return rank[observed] >= want
}

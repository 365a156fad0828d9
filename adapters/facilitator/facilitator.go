// Package facilitator implements a payment adapter backed by an external
// facilitator service over HTTP. The facilitator owns the actual payment
// rails; this adapter only moves protocol messages and maps outcomes onto
// the engine's verification contract.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	x402kit "github.com/402kit/402kit-go"
	"github.com/402kit/402kit-go/types"
)

// DefaultTimeout caps each facilitator round trip unless the caller's
// context is stricter.
const DefaultTimeout = 10 * time.Second

// Adapter talks to a facilitator's verify/settle endpoints.
type Adapter struct {
	verifyURL string
	settleURL string
	client    *http.Client
}

// Option configures a facilitator Adapter.
type Option func(*Adapter)

// WithSettleURL sets the settlement endpoint; settle is skipped without it.
func WithSettleURL(url string) Option {
	return func(a *Adapter) { a.settleURL = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// New creates a facilitator adapter for the given verify endpoint.
func New(verifyURL string, opts ...Option) *Adapter {
	a := &Adapter{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements PaymentAdapter.
func (a *Adapter) Name() string { return "facilitator" }

type initiateResponse struct {
	Ticket    string `json:"ticket"`
	VerifyURL string `json:"verifyUrl"`
	SettleURL string `json:"settleUrl"`
}

type verifyResponse struct {
	Ok       bool   `json:"ok"`
	Resource string `json:"resource,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// Initiate asks the facilitator for a payment ticket and wraps it in a
// payment header answering the challenge.
func (a *Adapter) Initiate(ctx context.Context, challenge *types.PaymentChallenge, _ *x402kit.AdapterContext) (*types.PaymentHeader, error) {
	var initResp initiateResponse
	err := a.post(ctx, a.verifyURL, map[string]any{
		"action":    "initiate",
		"challenge": challenge,
	}, &initResp)
	if err != nil {
		return nil, fmt.Errorf("facilitator initiate failed: %w", err)
	}

	verifyURL := initResp.VerifyURL
	if verifyURL == "" {
		verifyURL = a.verifyURL
	}
	settleURL := initResp.SettleURL
	if settleURL == "" {
		settleURL = a.settleURL
	}

	return &types.PaymentHeader{
		Version:     types.Version,
		Scheme:      challenge.Scheme,
		ChallengeID: challenge.ChallengeID,
		Network:     challenge.Network,
		Asset:       challenge.Asset,
		PaidAmount:  challenge.MaxAmountRequired,
		IssuedAt:    time.Now().UTC().Format(time.RFC3339),
		Nonce:       types.NewNonce(),
		Proof: types.FacilitatorProof{
			VerifyURL: verifyURL,
			SettleURL: settleURL,
			Ticket:    initResp.Ticket,
		},
	}, nil
}

// Verify submits the header to the facilitator's verify endpoint. Transport
// errors and timeouts surface as errors for the engine to treat as
// verification failure.
func (a *Adapter) Verify(ctx context.Context, header *types.PaymentHeader, _ *x402kit.AdapterContext) (*types.VerificationResult, error) {
	var resp verifyResponse
	err := a.post(ctx, a.verifyURL, map[string]any{
		"action": "verify",
		"header": header,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("facilitator verify failed: %w", err)
	}

	result := &types.VerificationResult{
		Ok:       resp.Ok,
		Resource: resp.Resource,
		Details:  resp.Details,
	}
	if !resp.Ok {
		result.Reason = normalizeReason(resp.Reason)
	}
	return result, nil
}

// Settle notifies the facilitator's settle endpoint. A proof-supplied settle
// URL wins over the configured one.
func (a *Adapter) Settle(ctx context.Context, header *types.PaymentHeader, _ *x402kit.AdapterContext) error {
	settleURL := a.settleURL
	if proof, ok := header.Proof.(types.FacilitatorProof); ok && proof.SettleURL != "" {
		settleURL = proof.SettleURL
	}
	if settleURL == "" {
		return nil
	}
	if err := a.post(ctx, settleURL, map[string]any{
		"action": "settle",
		"header": header,
	}, nil); err != nil {
		return fmt.Errorf("facilitator settle failed: %w", err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, url string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return nil
}

// normalizeReason clamps facilitator-reported reasons to the fixed set the
// engine understands.
func normalizeReason(reason string) string {
	switch reason {
	case types.ReasonInsufficient, types.ReasonExpired, types.ReasonMismatch, types.ReasonReplay:
		return reason
	default:
		return types.ReasonInvalid
	}
}

var (
	_ x402kit.PaymentAdapter  = (*Adapter)(nil)
	_ x402kit.SettlingAdapter = (*Adapter)(nil)
)

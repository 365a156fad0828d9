// Package mock provides a deterministic payment adapter for tests and local
// development. Proofs are HMAC-SHA256 signatures over the challenge id, so
// non-deterministic mode genuinely rejects tampered evidence.
package mock

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	x402kit "github.com/402kit/402kit-go"
	"github.com/402kit/402kit-go/types"
)

const defaultSecret = "mock-secret-key"

// Adapter is a PaymentAdapter test double.
type Adapter struct {
	deterministic bool
	secret        []byte
	now           func() time.Time
}

// Option configures a mock Adapter.
type Option func(*Adapter)

// WithSecret overrides the HMAC secret.
func WithSecret(secret string) Option {
	return func(a *Adapter) { a.secret = []byte(secret) }
}

// WithSignatureChecks makes Verify actually validate the proof signature
// instead of always succeeding.
func WithSignatureChecks() Option {
	return func(a *Adapter) { a.deterministic = false }
}

// WithClock replaces the adapter's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates a mock adapter. By default it is deterministic: Verify always
// succeeds.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		deterministic: true,
		secret:        []byte(defaultSecret),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements PaymentAdapter.
func (a *Adapter) Name() string { return "mock" }

// Initiate builds a payment header answering the challenge, paying exactly
// the required amount.
func (a *Adapter) Initiate(_ context.Context, challenge *types.PaymentChallenge, _ *x402kit.AdapterContext) (*types.PaymentHeader, error) {
	return &types.PaymentHeader{
		Version:     types.Version,
		Scheme:      challenge.Scheme,
		ChallengeID: challenge.ChallengeID,
		Network:     challenge.Network,
		Asset:       challenge.Asset,
		PaidAmount:  challenge.MaxAmountRequired,
		IssuedAt:    a.now().UTC().Format(time.RFC3339),
		Nonce:       types.NewNonce(),
		Proof:       types.MockProof{Signature: a.sign(challenge.ChallengeID)},
	}, nil
}

// Verify accepts any header in deterministic mode; otherwise it requires a
// mock proof whose signature matches the challenge id.
func (a *Adapter) Verify(_ context.Context, header *types.PaymentHeader, actx *x402kit.AdapterContext) (*types.VerificationResult, error) {
	if a.deterministic {
		return &types.VerificationResult{Ok: true, Resource: actx.Resource}, nil
	}

	proof, ok := header.Proof.(types.MockProof)
	if !ok {
		return &types.VerificationResult{Ok: false, Reason: types.ReasonInvalid}, nil
	}
	expected := a.sign(header.ChallengeID)
	if !hmac.Equal([]byte(proof.Signature), []byte(expected)) {
		return &types.VerificationResult{Ok: false, Reason: types.ReasonInvalid}, nil
	}
	return &types.VerificationResult{Ok: true, Resource: actx.Resource}, nil
}

func (a *Adapter) sign(data string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ x402kit.PaymentAdapter = (*Adapter)(nil)

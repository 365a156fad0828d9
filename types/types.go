// Package types defines the x402 wire messages: the payment challenge a
// server returns in a 402 response, the payment header a client attaches to
// the retried request, and the compact payment-response echo. It also owns
// the codec, canonical forms, and structural validation for those messages.
package types

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol tag carried by every challenge and payment header.
const Version = "x402.v1"

// Payment schemes.
const (
	SchemeExact = "exact"
	SchemeUpto  = "upto"
)

// Header names used by the protocol.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
	HeaderPaymentToken    = "X-PAYMENT-TOKEN"
)

// ResourceBinding scopes a payment to one exact request.
type ResourceBinding struct {
	Host       string `json:"host"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	BodySHA256 string `json:"bodySha256,omitempty"`
}

// PaymentChallenge is the body of a 402 response: what payment is required
// to access a resource. Challenges are immutable once minted.
type PaymentChallenge struct {
	Version           string          `json:"version"`
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	Asset             string          `json:"asset"`
	PayTo             string          `json:"payTo"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	ChallengeID       string          `json:"challengeId"`
	Bind              ResourceBinding `json:"bind"`
	Resource          string          `json:"resource"`
	Meta              map[string]any  `json:"meta,omitempty"`
}

// Proof type discriminators.
const (
	ProofTypeFacilitator = "facilitator"
	ProofTypeOnchain     = "onchain"
	ProofTypeMock        = "mock"
)

// PaymentProof is the polymorphic evidence attached to a payment header.
// Variants are selected by the "type" discriminator on the wire; new variants
// are added by defining a new struct and a matching adapter, never by
// branching on raw strings inside the engine.
type PaymentProof interface {
	ProofType() string
}

// FacilitatorProof carries a ticket issued by an external facilitator
// service together with the endpoints the server can verify/settle against.
type FacilitatorProof struct {
	VerifyURL string `json:"verifyUrl"`
	SettleURL string `json:"settleUrl"`
	Ticket    string `json:"ticket"`
}

// ProofType implements PaymentProof.
func (FacilitatorProof) ProofType() string { return ProofTypeFacilitator }

// OnchainProof references a settled on-chain transaction.
type OnchainProof struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// ProofType implements PaymentProof.
func (OnchainProof) ProofType() string { return ProofTypeOnchain }

// MockProof is a deterministic test proof.
type MockProof struct {
	Signature string `json:"signature"`
}

// ProofType implements PaymentProof.
func (MockProof) ProofType() string { return ProofTypeMock }

// PaymentHeader is the client-supplied message carried in the X-PAYMENT
// request header. A given (ChallengeID, Nonce) pair is consumed by the first
// successful verification and can never be used again.
type PaymentHeader struct {
	Version     string       `json:"version"`
	Scheme      string       `json:"scheme"`
	ChallengeID string       `json:"challengeId"`
	Network     string       `json:"network"`
	Asset       string       `json:"asset"`
	PaidAmount  string       `json:"paidAmount"`
	Payer       string       `json:"payer,omitempty"`
	IssuedAt    string       `json:"issuedAt"`
	Nonce       string       `json:"nonce"`
	Proof       PaymentProof `json:"proof"`
}

// paymentHeaderWire mirrors PaymentHeader with the proof left raw so the
// variant can be selected by its discriminator.
type paymentHeaderWire struct {
	Version     string          `json:"version"`
	Scheme      string          `json:"scheme"`
	ChallengeID string          `json:"challengeId"`
	Network     string          `json:"network"`
	Asset       string          `json:"asset"`
	PaidAmount  string          `json:"paidAmount"`
	Payer       string          `json:"payer,omitempty"`
	IssuedAt    string          `json:"issuedAt"`
	Nonce       string          `json:"nonce"`
	Proof       json.RawMessage `json:"proof"`
}

// MarshalJSON writes the proof with its "type" discriminator inlined.
func (h PaymentHeader) MarshalJSON() ([]byte, error) {
	raw, err := marshalProof(h.Proof)
	if err != nil {
		return nil, err
	}
	return json.Marshal(paymentHeaderWire{
		Version:     h.Version,
		Scheme:      h.Scheme,
		ChallengeID: h.ChallengeID,
		Network:     h.Network,
		Asset:       h.Asset,
		PaidAmount:  h.PaidAmount,
		Payer:       h.Payer,
		IssuedAt:    h.IssuedAt,
		Nonce:       h.Nonce,
		Proof:       raw,
	})
}

// UnmarshalJSON selects the proof variant by its discriminator.
func (h *PaymentHeader) UnmarshalJSON(data []byte) error {
	var wire paymentHeaderWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	proof, err := unmarshalProof(wire.Proof)
	if err != nil {
		return err
	}
	*h = PaymentHeader{
		Version:     wire.Version,
		Scheme:      wire.Scheme,
		ChallengeID: wire.ChallengeID,
		Network:     wire.Network,
		Asset:       wire.Asset,
		PaidAmount:  wire.PaidAmount,
		Payer:       wire.Payer,
		IssuedAt:    wire.IssuedAt,
		Nonce:       wire.Nonce,
		Proof:       proof,
	}
	return nil
}

func marshalProof(p PaymentProof) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("payment proof is required")
	}
	switch v := p.(type) {
	case FacilitatorProof:
		return json.Marshal(struct {
			Type string `json:"type"`
			FacilitatorProof
		}{ProofTypeFacilitator, v})
	case OnchainProof:
		return json.Marshal(struct {
			Type string `json:"type"`
			OnchainProof
		}{ProofTypeOnchain, v})
	case MockProof:
		return json.Marshal(struct {
			Type string `json:"type"`
			MockProof
		}{ProofTypeMock, v})
	default:
		return nil, fmt.Errorf("unknown proof type: %q", p.ProofType())
	}
}

func unmarshalProof(raw json.RawMessage) (PaymentProof, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("payment proof is required")
	}
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case ProofTypeFacilitator:
		var p FacilitatorProof
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ProofTypeOnchain:
		var p OnchainProof
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ProofTypeMock:
		var p MockProof
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown proof type: %q", tag.Type)
	}
}

// EntitlementConfig describes how a granted entitlement is carried.
type EntitlementConfig struct {
	Type       string `json:"type"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// PaymentResponse is the compact server-to-client echo carried in the
// X-PAYMENT-RESPONSE header after a successful verification.
type PaymentResponse struct {
	Ok          bool               `json:"ok"`
	ChallengeID string             `json:"challengeId"`
	Resource    string             `json:"resource"`
	Entitlement *EntitlementConfig `json:"entitlement,omitempty"`
	Error       string             `json:"error,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Verification failure reasons, reported by adapters.
const (
	ReasonInsufficient = "insufficient"
	ReasonExpired      = "expired"
	ReasonMismatch     = "mismatch"
	ReasonReplay       = "replay"
	ReasonInvalid      = "invalid"
)

// VerificationResult is what a payment adapter reports back to the engine.
// On failure, Reason is one of the Reason* constants; Details is opaque to
// the engine and never surfaced to clients.
type VerificationResult struct {
	Ok       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
	Resource string `json:"resource,omitempty"`
	Details  any    `json:"details,omitempty"`
}

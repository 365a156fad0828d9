package x402kit

import (
	"context"
	"net/http"

	"github.com/402kit/402kit-go/types"
)

// AdapterContext carries request-scoped material to a payment adapter.
// Binding is the canonical form of the live request; ChallengeBinding is the
// canonical form recorded when the engine minted the challenge, when known,
// so the adapter can cross-check the two during verification.
type AdapterContext struct {
	Request          *Request
	Resource         string
	Binding          string
	ChallengeBinding string
	Metadata         map[string]any
}

// PaymentAdapter performs payment initiation and verification against a
// specific payment network or test double. The engine depends only on this
// contract. Verify is the engine's sole suspension point and must honor ctx
// cancellation; a timeout or error is treated as verification failure, never
// as a crash.
type PaymentAdapter interface {
	Name() string
	Initiate(ctx context.Context, challenge *types.PaymentChallenge, actx *AdapterContext) (*types.PaymentHeader, error)
	Verify(ctx context.Context, header *types.PaymentHeader, actx *AdapterContext) (*types.VerificationResult, error)
}

// SettlingAdapter is implemented by adapters that support an explicit
// settlement step after verification.
type SettlingAdapter interface {
	PaymentAdapter
	Settle(ctx context.Context, header *types.PaymentHeader, actx *AdapterContext) error
}

// PriceConfig is what a price resolver returns for a protected route. PayTo
// is the merchant address; when empty the engine falls back to its
// WithPayTo option.
type PriceConfig struct {
	Scheme            string
	Network           string
	Asset             string
	MaxAmountRequired string
	PayTo             string
	Description       string
}

// PriceResolver maps a request to its price configuration.
type PriceResolver func(ctx context.Context, req *Request) (*PriceConfig, error)

// ResourceResolver maps a request to an opaque resource identifier.
type ResourceResolver func(ctx context.Context, req *Request) (string, error)

// EntitlementCarrier binds the entitlement store to a transport mechanism.
// Check inspects request headers for a valid token; Grant mints a token and
// returns the response headers that deliver it; Revoke deletes the token and
// returns any headers needed to clear it client-side.
type EntitlementCarrier interface {
	Check(header http.Header, resource string) bool
	Grant(resource string) (http.Header, error)
	Revoke(header http.Header) (http.Header, error)
}

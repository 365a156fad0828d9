// Package x402kit implements the x402 payment-challenge protocol engine:
// the component that decides, for each request to a priced resource, whether
// to issue a payment challenge, accept an existing entitlement, or verify an
// attached payment proof and grant access. Transport bindings live under
// pkg/, verification adapters under adapters/.
package x402kit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/402kit/402kit-go/types"
)

const (
	// MaxPaymentHeaderBytes is the size ceiling applied to the raw
	// X-PAYMENT value before any decoding.
	MaxPaymentHeaderBytes = 4096

	// DefaultClockSkew is the tolerance applied to a payment header's
	// issuedAt timestamp.
	DefaultClockSkew = 60 * time.Second

	// DefaultMaxTimeout is the challenge validity window advertised as
	// maxTimeoutSeconds.
	DefaultMaxTimeout = 60 * time.Second

	// DefaultVerifyTimeout caps a single adapter Verify call.
	DefaultVerifyTimeout = 10 * time.Second
)

// Engine is the request-handling state machine. It holds no request-scoped
// mutable state; all durable state lives in the replay, challenge, and
// entitlement stores, which are injected so multiple engines can share or
// isolate them deliberately.
type Engine struct {
	price    PriceResolver
	resource ResourceResolver

	adapters       map[string]PaymentAdapter
	defaultAdapter string

	entitlement EntitlementCarrier
	replay      ReplayStore
	challenges  *ChallengeStore

	payTo            string
	maxTimeout       time.Duration
	clockSkew        time.Duration
	verifyTimeout    time.Duration
	strictChallenges bool

	log *logrus.Logger
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapter registers a payment adapter under its own name.
func WithAdapter(adapter PaymentAdapter) Option {
	return func(e *Engine) { e.adapters[adapter.Name()] = adapter }
}

// WithDefaultAdapter selects which registered adapter verifies payments.
// Unnecessary when exactly one adapter is registered.
func WithDefaultAdapter(name string) Option {
	return func(e *Engine) { e.defaultAdapter = name }
}

// WithEntitlement configures the carrier used to check and grant
// entitlements.
func WithEntitlement(carrier EntitlementCarrier) Option {
	return func(e *Engine) { e.entitlement = carrier }
}

// WithReplayStore replaces the default in-memory replay store, e.g. to share
// one store between engines.
func WithReplayStore(store ReplayStore) Option {
	return func(e *Engine) { e.replay = store }
}

// WithChallengeStore replaces the default challenge store.
func WithChallengeStore(store *ChallengeStore) Option {
	return func(e *Engine) { e.challenges = store }
}

// WithPayTo sets the merchant address placed in minted challenges when the
// price resolver does not supply one.
func WithPayTo(address string) Option {
	return func(e *Engine) { e.payTo = address }
}

// WithMaxTimeout sets the challenge validity window.
func WithMaxTimeout(d time.Duration) Option {
	return func(e *Engine) { e.maxTimeout = d }
}

// WithClockSkew sets the issuedAt tolerance.
func WithClockSkew(d time.Duration) Option {
	return func(e *Engine) { e.clockSkew = d }
}

// WithVerifyTimeout caps adapter Verify calls; an expired deadline is
// treated as verification failure.
func WithVerifyTimeout(d time.Duration) Option {
	return func(e *Engine) { e.verifyTimeout = d }
}

// WithStrictChallenges makes the engine reject payment headers whose
// challenge id it has no record of. Off by default so engines behind a load
// balancer without a shared challenge store keep working.
func WithStrictChallenges() Option {
	return func(e *Engine) { e.strictChallenges = true }
}

// WithLogger replaces the engine's logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces the engine's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine for routes priced by the given resolvers.
func NewEngine(price PriceResolver, resource ResourceResolver, opts ...Option) *Engine {
	e := &Engine{
		price:         price,
		resource:      resource,
		adapters:      make(map[string]PaymentAdapter),
		maxTimeout:    DefaultMaxTimeout,
		clockSkew:     DefaultClockSkew,
		verifyTimeout: DefaultVerifyTimeout,
		log:           logrus.New(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.replay == nil {
		e.replay = NewMemoryReplayStore(DefaultReplayTTL, DefaultReplayMaxEntries)
	}
	if e.challenges == nil {
		e.challenges = NewChallengeStore(DefaultReplayMaxEntries)
	}
	return e
}

// Handle runs the state machine for one request. It never panics and never
// returns an error: every failure is mapped to a terminal Response carrying
// a stable error code.
func (e *Engine) Handle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("unexpected failure while handling payment request")
			resp = e.errorResponse(http.StatusBadRequest, CodeInvalidSchema, "payment processing failed", "")
		}
	}()

	if e.entitlement != nil {
		resource, err := e.resource(ctx, req)
		if err != nil {
			return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "resource resolution failed", "")
		}
		if e.entitlement.Check(req.Header, resource) {
			e.log.WithFields(logrus.Fields{"state": StateEntitled, "resource": resource}).Debug("entitlement accepted")
			return &Response{Status: http.StatusOK, Header: http.Header{}, Continue: true, State: StateEntitled}
		}
	}

	raw := req.Header.Get(types.HeaderPayment)
	if raw == "" {
		return e.mintChallenge(ctx, req)
	}
	return e.verifyPayment(ctx, req, raw)
}

// mintChallenge builds, records, and encodes a fresh challenge bound to the
// current request, and returns it as a 402 response.
func (e *Engine) mintChallenge(ctx context.Context, req *Request) *Response {
	price, err := e.price(ctx, req)
	if err != nil || price == nil {
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "price resolution failed", "")
	}
	resource, err := e.resource(ctx, req)
	if err != nil {
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "resource resolution failed", "")
	}

	payTo := price.PayTo
	if payTo == "" {
		payTo = e.payTo
	}
	if payTo == "" {
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "no merchant address configured", "")
	}

	scheme := price.Scheme
	if scheme == "" {
		scheme = types.SchemeExact
	}

	challenge := &types.PaymentChallenge{
		Version:           types.Version,
		Scheme:            scheme,
		Network:           price.Network,
		Asset:             price.Asset,
		PayTo:             payTo,
		MaxAmountRequired: price.MaxAmountRequired,
		MaxTimeoutSeconds: int(e.maxTimeout / time.Second),
		ChallengeID:       types.NewChallengeID(),
		Bind:              req.Binding(),
		Resource:          resource,
	}
	if price.Description != "" {
		challenge.Meta = map[string]any{"description": price.Description}
	}

	if err := types.ValidateChallenge(challenge); err != nil {
		e.log.WithError(err).Warn("refusing to mint malformed challenge")
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "challenge construction failed", "")
	}

	e.challenges.Record(challenge.ChallengeID, challenge.Bind, e.maxTimeout)

	body, err := types.EncodeChallenge(challenge)
	if err != nil {
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "challenge encoding failed", "")
	}

	e.log.WithFields(logrus.Fields{
		"state":       StateNeedChallenge,
		"challengeId": challenge.ChallengeID,
		"resource":    resource,
	}).Debug("payment challenge minted")

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &Response{
		Status: http.StatusPaymentRequired,
		Header: header,
		Body:   []byte(body),
		State:  StateNeedChallenge,
	}
}

// verifyPayment runs steps 3a-3h of the state machine on a raw X-PAYMENT
// value.
func (e *Engine) verifyPayment(ctx context.Context, req *Request, raw string) *Response {
	// Size and injection checks come before any decoding.
	if len(raw) > MaxPaymentHeaderBytes || containsCRLF(raw) {
		return e.errorResponse(http.StatusBadRequest, CodeInvalidSchema, "invalid payment header", "")
	}

	header, err := types.DecodePaymentHeader(raw)
	if err != nil {
		return e.errorResponse(http.StatusBadRequest, CodeInvalidSchema, "invalid payment header", "")
	}
	if err := types.ValidatePaymentHeader(header); err != nil {
		e.log.WithError(err).Debug("payment header failed validation")
		return e.errorResponse(http.StatusBadRequest, CodeInvalidSchema, "invalid payment header", header.ChallengeID)
	}

	bind := req.Binding()
	if bind.Host == "" || bind.Method == "" || bind.Path == "" {
		return e.errorResponse(http.StatusBadRequest, CodeInvalidBinding, "invalid request binding", header.ChallengeID)
	}
	canonical := types.CanonicalBinding(bind)

	now := e.now()

	// Cross-check against the challenge we issued, when we still have it.
	var challengeBinding string
	if issued, known := e.challenges.Get(header.ChallengeID); known {
		if now.After(issued.ExpiresAt) {
			return e.errorResponse(http.StatusPaymentRequired, CodeExpired, "challenge expired", header.ChallengeID)
		}
		challengeBinding = types.CanonicalBinding(issued.Bind)
		if challengeBinding != canonical {
			return e.errorResponse(http.StatusPaymentRequired, CodeMismatch, "payment bound to a different request", header.ChallengeID)
		}
	} else if e.strictChallenges {
		return e.errorResponse(http.StatusPaymentRequired, CodeExpired, "unknown or expired challenge", header.ChallengeID)
	}

	issuedAt, err := time.Parse(time.RFC3339, header.IssuedAt)
	if err != nil || absDuration(now.Sub(issuedAt)) > e.clockSkew {
		return e.errorResponse(http.StatusPaymentRequired, CodeExpired, "payment timestamp outside tolerance", header.ChallengeID)
	}

	adapter := e.selectAdapter()
	if adapter == nil {
		return e.errorResponse(http.StatusInternalServerError, CodeVerificationFailed, "no payment adapter configured", header.ChallengeID)
	}

	// Atomic reservation doubles as the replay check: the loser of a race
	// on the same pair sees false here.
	if !e.replay.MarkIfUnseen(header.ChallengeID, header.Nonce) {
		return e.errorResponse(http.StatusConflict, CodeReplay, "payment already used", header.ChallengeID)
	}

	resource, err := e.resource(ctx, req)
	if err != nil {
		e.replay.Release(header.ChallengeID, header.Nonce)
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "resource resolution failed", header.ChallengeID)
	}

	actx := &AdapterContext{
		Request:          req,
		Resource:         resource,
		Binding:          canonical,
		ChallengeBinding: challengeBinding,
	}

	vctx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	defer cancel()
	result, err := adapter.Verify(vctx, header, actx)

	if err != nil || result == nil || !result.Ok {
		// The pair stays unconsumed until a verification succeeds.
		e.replay.Release(header.ChallengeID, header.Nonce)
		code := CodeVerificationFailed
		if result != nil {
			switch result.Reason {
			case types.ReasonInsufficient:
				code = CodeInsufficient
			case types.ReasonExpired:
				code = CodeExpired
			case types.ReasonMismatch:
				code = CodeMismatch
			}
		}
		e.log.WithFields(logrus.Fields{
			"state":       StateRejected,
			"challengeId": header.ChallengeID,
			"adapter":     adapter.Name(),
			"code":        code,
		}).Warn("payment verification failed")
		return e.errorResponse(http.StatusPaymentRequired, code, "payment verification failed", header.ChallengeID)
	}

	respHeader := http.Header{}
	echo := &types.PaymentResponse{
		Ok:          true,
		ChallengeID: header.ChallengeID,
		Resource:    resource,
	}

	if e.entitlement != nil {
		granted, err := e.entitlement.Grant(resource)
		if err != nil {
			// No half-applied state: undo the replay reservation too.
			e.replay.Release(header.ChallengeID, header.Nonce)
			return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "entitlement grant failed", header.ChallengeID)
		}
		mergeHeader(respHeader, granted)
		if info, ok := e.entitlement.(interface {
			Type() string
			TTL() time.Duration
		}); ok {
			echo.Entitlement = &types.EntitlementConfig{
				Type:       info.Type(),
				TTLSeconds: int(info.TTL() / time.Second),
			}
		}
	}

	encoded, err := types.EncodePaymentResponse(echo)
	if err != nil {
		e.replay.Release(header.ChallengeID, header.Nonce)
		return e.errorResponse(http.StatusInternalServerError, CodeInternalError, "response encoding failed", header.ChallengeID)
	}
	respHeader.Set(types.HeaderPaymentResponse, encoded)

	e.log.WithFields(logrus.Fields{
		"state":       StateVerified,
		"challengeId": header.ChallengeID,
		"resource":    resource,
		"adapter":     adapter.Name(),
	}).Debug("payment verified")

	return &Response{Status: http.StatusOK, Header: respHeader, Continue: true, State: StateVerified}
}

// selectAdapter returns the configured default adapter, or the only
// registered one when no default is named.
func (e *Engine) selectAdapter() PaymentAdapter {
	if e.defaultAdapter != "" {
		return e.adapters[e.defaultAdapter]
	}
	if len(e.adapters) == 1 {
		for _, adapter := range e.adapters {
			return adapter
		}
	}
	return nil
}

func (e *Engine) errorResponse(status int, code, message, challengeID string) *Response {
	body, _ := json.Marshal(&PaymentError{Code: code, Message: message, ChallengeID: challengeID})
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &Response{
		Status: status,
		Header: header,
		Body:   body,
		State:  StateRejected,
	}
}

func containsCRLF(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' || s[i] == '\n' {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func mergeHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

package x402kit_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402kit "github.com/402kit/402kit-go"
	"github.com/402kit/402kit-go/adapters/mock"
	"github.com/402kit/402kit-go/types"
)

const (
	testAsset = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testPayTo = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(opts ...x402kit.Option) *x402kit.Engine {
	price := func(_ context.Context, _ *x402kit.Request) (*x402kit.PriceConfig, error) {
		return &x402kit.PriceConfig{
			Network:           "evm:base:sepolia",
			Asset:             testAsset,
			MaxAmountRequired: "1000",
			PayTo:             testPayTo,
		}, nil
	}
	resource := func(_ context.Context, req *x402kit.Request) (string, error) {
		return "urn:resource:" + req.Path, nil
	}
	opts = append([]x402kit.Option{x402kit.WithLogger(quietLogger())}, opts...)
	return x402kit.NewEngine(price, resource, opts...)
}

func newRequest(method, path string) *x402kit.Request {
	return &x402kit.Request{
		Method: method,
		Host:   "api.example.com",
		Path:   path,
		Header: http.Header{},
	}
}

// mintChallenge drives the engine through the challenge flow and returns the
// decoded 402 body.
func mintChallenge(t *testing.T, engine *x402kit.Engine, req *x402kit.Request) *types.PaymentChallenge {
	t.Helper()
	resp := engine.Handle(context.Background(), req)
	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	challenge, err := types.DecodeChallenge(string(resp.Body))
	require.NoError(t, err)
	return challenge
}

// payFor answers a minted challenge with the mock adapter and returns the
// encoded X-PAYMENT value.
func payFor(t *testing.T, adapter *mock.Adapter, challenge *types.PaymentChallenge) string {
	t.Helper()
	header, err := adapter.Initiate(context.Background(), challenge, nil)
	require.NoError(t, err)
	encoded, err := types.EncodePaymentHeader(header)
	require.NoError(t, err)
	return encoded
}

func decodeError(t *testing.T, resp *x402kit.Response) *x402kit.PaymentError {
	t.Helper()
	var perr x402kit.PaymentError
	require.NoError(t, json.Unmarshal(resp.Body, &perr))
	return &perr
}

func TestEngineMintsChallenge(t *testing.T) {
	engine := newTestEngine(x402kit.WithAdapter(mock.New()))
	req := newRequest("GET", "/api/data")

	resp := engine.Handle(context.Background(), req)

	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.False(t, resp.Continue)
	assert.Equal(t, x402kit.StateNeedChallenge, resp.State)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	challenge, err := types.DecodeChallenge(string(resp.Body))
	require.NoError(t, err)
	require.NoError(t, types.ValidateChallenge(challenge))
	assert.Equal(t, types.Version, challenge.Version)
	assert.Equal(t, types.SchemeExact, challenge.Scheme)
	assert.Equal(t, "evm:base:sepolia", challenge.Network)
	assert.Equal(t, testAsset, challenge.Asset)
	assert.Equal(t, testPayTo, challenge.PayTo)
	assert.Equal(t, "1000", challenge.MaxAmountRequired)
	assert.Equal(t, 60, challenge.MaxTimeoutSeconds)
	assert.Equal(t, "urn:resource:/api/data", challenge.Resource)
	assert.Equal(t, req.Binding(), challenge.Bind)

	// Every challenge carries a fresh id.
	second := mintChallenge(t, engine, newRequest("GET", "/api/data"))
	assert.NotEqual(t, challenge.ChallengeID, second.ChallengeID)
}

func TestEngineAcceptsValidPayment(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine(x402kit.WithAdapter(adapter))

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Continue)
	assert.Equal(t, x402kit.StateVerified, resp.State)

	echo, err := types.DecodePaymentResponse(resp.Header.Get(types.HeaderPaymentResponse))
	require.NoError(t, err)
	assert.True(t, echo.Ok)
	assert.Equal(t, challenge.ChallengeID, echo.ChallengeID)
	assert.Equal(t, "urn:resource:/api/data", echo.Resource)
}

func TestEngineRejectsReplay(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine(x402kit.WithAdapter(adapter))

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	first := engine.Handle(context.Background(), req)
	require.Equal(t, http.StatusOK, first.Status)

	second := engine.Handle(context.Background(), req)
	require.Equal(t, http.StatusConflict, second.Status)
	assert.Equal(t, x402kit.StateRejected, second.State)
	perr := decodeError(t, second)
	assert.Equal(t, x402kit.CodeReplay, perr.Code)
	assert.Equal(t, challenge.ChallengeID, perr.ChallengeID)
}

func TestEngineRejectsStaleTimestamp(t *testing.T) {
	stale := mock.New(mock.WithClock(func() time.Time {
		return time.Now().Add(-120 * time.Second)
	}))
	engine := newTestEngine(x402kit.WithAdapter(stale))

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)
	req.Header.Set(types.HeaderPayment, payFor(t, stale, challenge))

	resp := engine.Handle(context.Background(), req)

	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, x402kit.CodeExpired, decodeError(t, resp).Code)
}

func TestEngineRejectsMalformedHeaders(t *testing.T) {
	engine := newTestEngine(x402kit.WithAdapter(mock.New()))

	cases := map[string]string{
		"not base64":     "!!!not-base64url!!!",
		"not json":       "bm90LWpzb24",
		"oversize":       strings.Repeat("A", x402kit.MaxPaymentHeaderBytes+1),
		"crlf injection": "eyJmb28i\r\nOiJiYXIifQ",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			req := newRequest("GET", "/api/data")
			req.Header.Set(types.HeaderPayment, value)

			resp := engine.Handle(context.Background(), req)

			require.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, x402kit.StateRejected, resp.State)
			assert.Equal(t, x402kit.CodeInvalidSchema, decodeError(t, resp).Code)
		})
	}
}

func TestEngineRejectsBindingMismatch(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine(x402kit.WithAdapter(adapter))

	challenge := mintChallenge(t, engine, newRequest("GET", "/api/data"))

	// Pay for /api/data, spend on /api/other.
	other := newRequest("GET", "/api/other")
	other.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), other)

	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, x402kit.CodeMismatch, decodeError(t, resp).Code)
}

func TestEngineStrictChallenges(t *testing.T) {
	adapter := mock.New()
	strict := newTestEngine(x402kit.WithAdapter(adapter), x402kit.WithStrictChallenges())

	// A challenge minted by a different engine is unknown to this one.
	foreign := newTestEngine(x402kit.WithAdapter(adapter))
	challenge := mintChallenge(t, foreign, newRequest("GET", "/api/data"))

	req := newRequest("GET", "/api/data")
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := strict.Handle(context.Background(), req)

	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, x402kit.CodeExpired, decodeError(t, resp).Code)
}

func TestEngineLenientUnknownChallenge(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine(x402kit.WithAdapter(adapter))

	foreign := newTestEngine(x402kit.WithAdapter(adapter))
	challenge := mintChallenge(t, foreign, newRequest("GET", "/api/data"))

	req := newRequest("GET", "/api/data")
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), req)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Continue)
}

func TestEngineExpiredChallenge(t *testing.T) {
	adapter := mock.New()
	now := time.Now()
	clock := func() time.Time { return now }
	engine := newTestEngine(x402kit.WithAdapter(adapter), x402kit.WithClock(clock))

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)

	// The challenge window has closed by the time the payment arrives.
	now = now.Add(2 * time.Minute)
	header, err := adapter.Initiate(context.Background(), challenge, nil)
	require.NoError(t, err)
	encoded, err := types.EncodePaymentHeader(header)
	require.NoError(t, err)
	req.Header.Set(types.HeaderPayment, encoded)

	resp := engine.Handle(context.Background(), req)

	require.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, x402kit.CodeExpired, decodeError(t, resp).Code)
}

func TestEngineNoAdapterConfigured(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine()

	foreign := newTestEngine(x402kit.WithAdapter(adapter))
	challenge := mintChallenge(t, foreign, newRequest("GET", "/api/data"))

	req := newRequest("GET", "/api/data")
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), req)

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, x402kit.CodeVerificationFailed, decodeError(t, resp).Code)
}

func TestEngineMissingPayTo(t *testing.T) {
	price := func(_ context.Context, _ *x402kit.Request) (*x402kit.PriceConfig, error) {
		return &x402kit.PriceConfig{
			Network:           "evm:base:sepolia",
			Asset:             testAsset,
			MaxAmountRequired: "1000",
		}, nil
	}
	resource := func(_ context.Context, _ *x402kit.Request) (string, error) {
		return "urn:resource:data", nil
	}
	engine := x402kit.NewEngine(price, resource,
		x402kit.WithLogger(quietLogger()),
		x402kit.WithAdapter(mock.New()),
	)

	resp := engine.Handle(context.Background(), newRequest("GET", "/api/data"))

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, x402kit.CodeInternalError, decodeError(t, resp).Code)
}

// failingAdapter reports a fixed verification outcome.
type failingAdapter struct {
	result *types.VerificationResult
	err    error
}

func (f *failingAdapter) Name() string { return "failing" }

func (f *failingAdapter) Initiate(context.Context, *types.PaymentChallenge, *x402kit.AdapterContext) (*types.PaymentHeader, error) {
	return nil, errors.New("initiate not supported")
}

func (f *failingAdapter) Verify(context.Context, *types.PaymentHeader, *x402kit.AdapterContext) (*types.VerificationResult, error) {
	return f.result, f.err
}

func TestEngineMapsAdapterReasons(t *testing.T) {
	cases := []struct {
		name     string
		result   *types.VerificationResult
		err      error
		wantCode string
	}{
		{"insufficient", &types.VerificationResult{Ok: false, Reason: types.ReasonInsufficient}, nil, x402kit.CodeInsufficient},
		{"expired", &types.VerificationResult{Ok: false, Reason: types.ReasonExpired}, nil, x402kit.CodeExpired},
		{"mismatch", &types.VerificationResult{Ok: false, Reason: types.ReasonMismatch}, nil, x402kit.CodeMismatch},
		{"invalid", &types.VerificationResult{Ok: false, Reason: types.ReasonInvalid}, nil, x402kit.CodeVerificationFailed},
		{"adapter error", nil, errors.New("facilitator unreachable"), x402kit.CodeVerificationFailed},
	}

	minter := mock.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(x402kit.WithAdapter(&failingAdapter{result: tc.result, err: tc.err}))

			req := newRequest("GET", "/api/data")
			challenge := mintChallenge(t, engine, req)
			req.Header.Set(types.HeaderPayment, payFor(t, minter, challenge))

			resp := engine.Handle(context.Background(), req)

			require.Equal(t, http.StatusPaymentRequired, resp.Status)
			assert.Equal(t, x402kit.StateRejected, resp.State)
			assert.Equal(t, tc.wantCode, decodeError(t, resp).Code)
		})
	}
}

func TestEngineFailedVerificationLeavesNonceSpendable(t *testing.T) {
	replay := x402kit.NewMemoryReplayStore(time.Minute, 0)
	challenges := x402kit.NewChallengeStore(0)
	minter := mock.New()

	rejecting := newTestEngine(
		x402kit.WithAdapter(&failingAdapter{result: &types.VerificationResult{Ok: false, Reason: types.ReasonInvalid}}),
		x402kit.WithReplayStore(replay),
		x402kit.WithChallengeStore(challenges),
	)

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, rejecting, req)
	encoded := payFor(t, minter, challenge)
	req.Header.Set(types.HeaderPayment, encoded)

	resp := rejecting.Handle(context.Background(), req)
	require.Equal(t, http.StatusPaymentRequired, resp.Status)

	// Only a successful verification consumes the pair; the same payment
	// must succeed once the verifier recovers.
	accepting := newTestEngine(
		x402kit.WithAdapter(mock.New()),
		x402kit.WithReplayStore(replay),
		x402kit.WithChallengeStore(challenges),
	)
	retry := newRequest("GET", "/api/data")
	retry.Header.Set(types.HeaderPayment, encoded)

	resp = accepting.Handle(context.Background(), retry)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Continue)
}

func TestEngineEntitlementFlow(t *testing.T) {
	adapter := mock.New()
	carrier := x402kit.NewBearerCarrier(nil)
	engine := newTestEngine(
		x402kit.WithAdapter(adapter),
		x402kit.WithEntitlement(carrier),
	)

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), req)
	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, resp.Continue)

	token := resp.Header.Get(types.HeaderPaymentToken)
	require.NotEmpty(t, token)

	echo, err := types.DecodePaymentResponse(resp.Header.Get(types.HeaderPaymentResponse))
	require.NoError(t, err)
	require.NotNil(t, echo.Entitlement)
	assert.Equal(t, x402kit.CarrierBearer, echo.Entitlement.Type)
	assert.Equal(t, 3600, echo.Entitlement.TTLSeconds)

	// The token short-circuits the whole payment path on the next request.
	next := newRequest("GET", "/api/data")
	next.Header.Set("Authorization", "Bearer "+token)

	resp = engine.Handle(context.Background(), next)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Continue)
	assert.Equal(t, x402kit.StateEntitled, resp.State)

	// An entitlement for one resource does not open another.
	other := newRequest("GET", "/api/other")
	other.Header.Set("Authorization", "Bearer "+token)

	resp = engine.Handle(context.Background(), other)
	assert.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, x402kit.StateNeedChallenge, resp.State)
}

func TestEngineDefaultAdapterSelection(t *testing.T) {
	adapter := mock.New()
	engine := newTestEngine(
		x402kit.WithAdapter(adapter),
		x402kit.WithAdapter(&failingAdapter{result: &types.VerificationResult{Ok: false, Reason: types.ReasonInvalid}}),
		x402kit.WithDefaultAdapter("mock"),
	)

	req := newRequest("GET", "/api/data")
	challenge := mintChallenge(t, engine, req)
	req.Header.Set(types.HeaderPayment, payFor(t, adapter, challenge))

	resp := engine.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Continue)
}

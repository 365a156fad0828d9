package echo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402kit "github.com/402kit/402kit-go"
	"github.com/402kit/402kit-go/adapters/mock"
	"github.com/402kit/402kit-go/types"
)

func newEngine(adapter *mock.Adapter) *x402kit.Engine {
	price := func(_ context.Context, _ *x402kit.Request) (*x402kit.PriceConfig, error) {
		return &x402kit.PriceConfig{
			Network:           "evm:base:sepolia",
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			MaxAmountRequired: "1000",
			PayTo:             "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		}, nil
	}
	resource := func(_ context.Context, req *x402kit.Request) (string, error) {
		return "urn:resource:" + req.Path, nil
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return x402kit.NewEngine(price, resource, x402kit.WithLogger(log), x402kit.WithAdapter(adapter))
}

func TestPaymentMiddleware(t *testing.T) {
	adapter := mock.New()
	e := echo.New()
	e.Use(PaymentMiddleware(newEngine(adapter)))
	e.GET("/api/data", func(c echo.Context) error {
		return c.String(http.StatusOK, "protected content")
	})

	req := httptest.NewRequest("GET", "http://api.example.com/api/data", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	challenge, err := types.DecodeChallenge(rec.Body.String())
	require.NoError(t, err)

	payment, err := adapter.Initiate(context.Background(), challenge, nil)
	require.NoError(t, err)
	encoded, err := types.EncodePaymentHeader(payment)
	require.NoError(t, err)

	req = httptest.NewRequest("GET", "http://api.example.com/api/data", nil)
	req.Header.Set(types.HeaderPayment, encoded)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected content", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(types.HeaderPaymentResponse))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

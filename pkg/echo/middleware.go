// Package echo binds the payment engine to Echo middleware chains.
package echo

import (
	"github.com/labstack/echo/v4"

	x402kit "github.com/402kit/402kit-go"
)

// PaymentMiddleware runs the x402 payment state machine before the route
// handler. Cleared requests continue down the chain with the granted headers
// applied; rejected ones receive the engine's response directly.
func PaymentMiddleware(engine *x402kit.Engine) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			resp := engine.Handle(r.Context(), x402kit.FromHTTPRequest(r))

			header := c.Response().Header()
			for key, values := range resp.Header {
				for _, value := range values {
					header.Add(key, value)
				}
			}

			if resp.Continue {
				return next(c)
			}

			return c.Blob(resp.Status, "application/json", resp.Body)
		}
	}
}

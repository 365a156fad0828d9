// Package stdlib binds the payment engine to net/http handler chains.
package stdlib

import (
	"net/http"

	x402kit "github.com/402kit/402kit-go"
)

// PaymentMiddleware wraps a handler with the x402 payment state machine.
// Requests the engine clears fall through to next with the granted headers
// already applied; everything else gets the engine's challenge or error
// response.
func PaymentMiddleware(engine *x402kit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := engine.Handle(r.Context(), x402kit.FromHTTPRequest(r))

			for key, values := range resp.Header {
				for _, value := range values {
					w.Header().Add(key, value)
				}
			}

			if resp.Continue {
				next.ServeHTTP(w, r)
				return
			}

			w.WriteHeader(resp.Status)
			if len(resp.Body) > 0 {
				w.Write(resp.Body)
			}
		})
	}
}

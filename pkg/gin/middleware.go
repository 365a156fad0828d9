// Package gin binds the payment engine to Gin handler chains.
package gin

import (
	"github.com/gin-gonic/gin"

	x402kit "github.com/402kit/402kit-go"
)

// PaymentMiddleware runs the x402 payment state machine before the route
// handler. Cleared requests continue down the chain with the granted headers
// applied; rejected ones are aborted with the engine's response.
func PaymentMiddleware(engine *x402kit.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := engine.Handle(c.Request.Context(), x402kit.FromHTTPRequest(c.Request))

		for key, values := range resp.Header {
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}

		if resp.Continue {
			c.Next()
			return
		}

		c.Data(resp.Status, "application/json", resp.Body)
		c.Abort()
	}
}

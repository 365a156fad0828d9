package x402kit

import "fmt"

// Stable error codes returned in JSON error bodies. Clients branch on these;
// the accompanying messages are short and fixed, and adapter-internal detail
// is never included.
const (
	CodeExpired            = "expired"
	CodeInsufficient       = "insufficient"
	CodeMismatch           = "mismatch"
	CodeReplay             = "replay"
	CodeInvalidSchema      = "invalid_schema"
	CodeInvalidBinding     = "invalid_binding"
	CodeVerificationFailed = "verification_failed"
	CodeInternalError      = "internal_error"
)

// PaymentError is the JSON error body for rejected requests.
type PaymentError struct {
	Code        string `json:"error"`
	Message     string `json:"message"`
	ChallengeID string `json:"challengeId,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPaymentError creates a payment error with a stable code.
func NewPaymentError(code, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

package types

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
)

var (
	challengeSchemaLoader       = gojsonschema.NewStringLoader(challengeSchema)
	paymentHeaderSchemaLoader   = gojsonschema.NewStringLoader(paymentHeaderSchema)
	paymentResponseSchemaLoader = gojsonschema.NewStringLoader(paymentResponseSchema)

	atomicAmountRegexp = regexp.MustCompile(`^\d+$`)
)

// ValidateAtomicAmount reports whether s is a non-negative integer string in
// atomic units. Floats, signs, and empty strings are rejected.
func ValidateAtomicAmount(s string) bool {
	return atomicAmountRegexp.MatchString(s)
}

// ValidateEthAddress reports whether s is a 0x-prefixed 20-byte hex address.
// Case is not significant; the 0x prefix is mandatory.
func ValidateEthAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ValidateNetworkId reports whether s has the <chain>:<network>:<environment>
// form with exactly three non-empty segments.
func ValidateNetworkId(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// ValidateChallenge checks a decoded challenge against the wire schema.
// Returns nil when valid; the error describes the first schema violation and
// is safe to log but not meant for clients.
func ValidateChallenge(challenge *PaymentChallenge) error {
	if challenge == nil {
		return fmt.Errorf("challenge is nil")
	}
	return validateAgainstSchema(challengeSchemaLoader, challenge)
}

// ValidatePaymentHeader checks a decoded payment header against the wire
// schema. Malformed untrusted input yields an error, never a panic.
func ValidatePaymentHeader(header *PaymentHeader) error {
	if header == nil {
		return fmt.Errorf("payment header is nil")
	}
	if header.Proof == nil {
		return fmt.Errorf("payment proof is required")
	}
	return validateAgainstSchema(paymentHeaderSchemaLoader, header)
}

// ValidatePaymentResponse checks a decoded payment response echo.
func ValidatePaymentResponse(response *PaymentResponse) error {
	if response == nil {
		return fmt.Errorf("payment response is nil")
	}
	return validateAgainstSchema(paymentResponseSchemaLoader, response)
}

func validateAgainstSchema(schema gojsonschema.JSONLoader, doc any) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		desc := result.Errors()[0]
		return fmt.Errorf("%s: %s", desc.Context().String(), desc.Description())
	}
	return nil
}

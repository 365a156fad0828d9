package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeChallenge serializes a challenge as pretty-printed JSON for the body
// of a 402 response.
func EncodeChallenge(challenge *PaymentChallenge) (string, error) {
	data, err := json.MarshalIndent(challenge, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge: %w", err)
	}
	return string(data), nil
}

// DecodeChallenge parses a challenge from JSON. It fails on malformed JSON
// only; semantic checks belong to ValidateChallenge.
func DecodeChallenge(body string) (*PaymentChallenge, error) {
	var challenge PaymentChallenge
	if err := json.Unmarshal([]byte(body), &challenge); err != nil {
		return nil, fmt.Errorf("invalid challenge body: %w", err)
	}
	return &challenge, nil
}

// EncodePaymentHeader serializes a payment header as unpadded base64url JSON,
// safe for use as an HTTP header value.
func EncodePaymentHeader(header *PaymentHeader) (string, error) {
	data, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment header: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader reverses EncodePaymentHeader. Both padded and unpadded
// base64url input are accepted.
func DecodePaymentHeader(encoded string) (*PaymentHeader, error) {
	data, err := decodeBase64URL(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid payment header encoding: %w", err)
	}
	var header PaymentHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("invalid payment header: %w", err)
	}
	return &header, nil
}

// EncodePaymentResponse serializes the response echo as unpadded base64url
// JSON for the X-PAYMENT-RESPONSE header.
func EncodePaymentResponse(response *PaymentResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment response: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodePaymentResponse reverses EncodePaymentResponse.
func DecodePaymentResponse(encoded string) (*PaymentResponse, error) {
	data, err := decodeBase64URL(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid payment response encoding: %w", err)
	}
	var response PaymentResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("invalid payment response: %w", err)
	}
	return &response, nil
}

func decodeBase64URL(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
}

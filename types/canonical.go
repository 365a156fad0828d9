package types

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// CanonicalBinding returns the deterministic string form of a resource
// binding: METHOD, lowercased host, and path joined by newlines, with the
// body hash appended when present. Adapters verify signatures over exactly
// these bytes.
func CanonicalBinding(bind ResourceBinding) string {
	parts := []string{
		strings.ToUpper(bind.Method),
		strings.ToLower(bind.Host),
		bind.Path,
	}
	if bind.BodySHA256 != "" {
		parts = append(parts, bind.BodySHA256)
	}
	return strings.Join(parts, "\n")
}

// CanonicalPayment returns the deterministic string form of a payment
// header. Address fields are lowercased; the optional payer is appended last
// when present.
func CanonicalPayment(header *PaymentHeader) string {
	parts := []string{
		header.Version,
		header.Scheme,
		header.ChallengeID,
		header.Network,
		strings.ToLower(header.Asset),
		header.PaidAmount,
		header.IssuedAt,
		header.Nonce,
	}
	if header.Payer != "" {
		parts = append(parts, strings.ToLower(header.Payer))
	}
	return strings.Join(parts, "\n")
}

// PaymentDigest returns the Keccak-256 hash of the canonical payment string
// as a 0x-prefixed hex string. This is the EVM-signable digest an on-chain
// proof must cover.
func PaymentDigest(header *PaymentHeader) string {
	return crypto.Keccak256Hash([]byte(CanonicalPayment(header))).Hex()
}

// HashBody returns the lowercase hex SHA-256 of a request body, suitable for
// ResourceBinding.BodySHA256.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NewNonce returns a 128-bit cryptographically random nonce, base64url
// encoded without padding.
func NewNonce() string {
	var b [16]byte
	rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// NewChallengeID returns a fresh UUID v4 challenge identifier.
func NewChallengeID() string {
	return uuid.NewString()
}

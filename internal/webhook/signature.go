package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// SignaturePrefix identifies the HMAC scheme in the signature header.
	SignaturePrefix = "sha256="

	// SecretPrefix marks generated signing secrets.
	SecretPrefix = "whsec_"

	secretBytes = 32
)

// Sign computes the signature header value for a payload:
// "sha256=" followed by hex-encoded HMAC-SHA256 over the exact payload bytes.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against the payload
// using constant-time comparison.
func VerifySignature(secret string, payload []byte, header string) bool {
	expected := Sign(secret, payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(header)) == 1
}

// GenerateSecret creates a new signing secret with the whsec_ prefix.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

package lightningwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// VerifySignature checks the hex-encoded HMAC-SHA256 digest the provider
// sends over the raw request body.
func VerifySignature(payload []byte, signature, secret string) error {
	if secret == "" {
		return errors.New("webhook secret is not configured")
	}
	if signature == "" {
		return errors.New("signature is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return errors.New("signature is not valid hex")
	}
	if !hmac.Equal(expected, got) {
		return errors.New("signature mismatch")
	}
	return nil
}

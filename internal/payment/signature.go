package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignHMACSHA256 returns the raw HMAC-SHA256 of body under secret.
func SignHMACSHA256(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// VerifyBase64Signature compares a base64 encoded HMAC in constant time.
func VerifyBase64Signature(secret string, body []byte, signature string) bool {
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, SignHMACSHA256(secret, body))
}

// VerifyHexSignature compares a hex encoded HMAC in constant time.
func VerifyHexSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(strings.ToLower(signature)))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, SignHMACSHA256(secret, body))
}

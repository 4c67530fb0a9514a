package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// replayWindow bounds how far a signed timestamp may drift from now.
const replayWindow = 5 * time.Minute

func hmacSHA256(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		mac.Write(part)
	}
	return mac.Sum(nil)
}

func validBase64Signature(signature string, expected []byte) bool {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}

func validHexSignature(signature string, expected []byte) bool {
	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}

func constantTimeEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func checkWindow(signedAt, now time.Time) error {
	drift := now.Sub(signedAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > replayWindow {
		return fmt.Errorf("%w: timestamp outside %s window", ErrSignatureInvalid, replayWindow)
	}
	return nil
}

func requireHeader(req Request, name string) (string, error) {
	value := strings.TrimSpace(req.Headers.Get(name))
	if value == "" {
		return "", fmt.Errorf("%w: missing %s", ErrUnauthorized, name)
	}
	return value, nil
}

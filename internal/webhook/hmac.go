package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// verifyHMACSignature verifies an HMAC-SHA256 signature against the request
// body using constant-time comparison. Accepts the "sha256=<hex>" form sent
// by GitHub as well as plain hex.
//
// All errors are generic to prevent information leakage.
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return fmt.Errorf("webhook verification failed")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedMAC := mac.Sum(nil)

	actualMAC, err := parseSignature(signature)
	if err != nil {
		return fmt.Errorf("webhook verification failed")
	}

	if subtle.ConstantTimeCompare(expectedMAC, actualMAC) != 1 {
		return fmt.Errorf("webhook verification failed")
	}
	return nil
}

func parseSignature(signature string) ([]byte, error) {
	if hexSig, ok := strings.CutPrefix(signature, "sha256="); ok {
		return hex.DecodeString(hexSig)
	}
	return hex.DecodeString(signature)
}

// computeExpectedSignature returns the hex HMAC-SHA256 of body. Used in
// tests to build valid requests.
func computeExpectedSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatGitHubSignature renders a hex signature in GitHub's
// X-Hub-Signature-256 style.
func formatGitHubSignature(hexSig string) string {
	return "sha256=" + hexSig
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the body keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Sign returns the header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header. An empty secret disables the check.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}

	if header == "" {
		return ErrMissingSignature
	}

	digest, found := strings.CutPrefix(header, signaturePrefix)
	if !found {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(digest)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

var ErrVerificationFailed = errors.New("webhook subscription verification failed")

// VerifySubscription answers the subscription handshake, returning the challenge
// to echo when mode and token match.
func VerifySubscription(mode, token, challenge, expectedToken string) (string, error) {
	if mode != "subscribe" || expectedToken == "" || token != expectedToken {
		return "", ErrVerificationFailed
	}

	return challenge, nil
}

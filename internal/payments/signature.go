package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"renewal-service/internal/apperr"
)

const (
	SignatureHeader           = "Stripe-Signature"
	DefaultSignatureTolerance = 5 * time.Minute
)

// VerifySignature checks a Stripe-Signature header ("t=<unix>,v1=<hex>[,v1=...]") against
// HMAC-SHA256(secret, "<t>.<payload>") and rejects timestamps outside tolerance of now.
func VerifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return &apperr.ValidationError{Field: SignatureHeader, Reason: "missing"}
	}

	var timestamp string
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if sig, err := hex.DecodeString(value); err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return &apperr.ValidationError{Field: SignatureHeader, Reason: "malformed"}
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &apperr.ValidationError{Field: SignatureHeader, Reason: "bad timestamp"}
	}
	if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
		return &apperr.ValidationError{Field: SignatureHeader, Reason: "timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return &apperr.ValidationError{Field: SignatureHeader, Reason: "no matching signature"}
}

// Sign produces a header value VerifySignature accepts. Used by tests and local tooling.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

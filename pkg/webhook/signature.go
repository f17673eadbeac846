package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Billingkit-Signature"
	HeaderTimestamp = "X-Billingkit-Timestamp"
	HeaderID        = "X-Billingkit-Delivery"
)

// Signature binds a payload to the moment it was sent.
// The digest is HMAC-SHA256(secret, "<unix timestamp>.<payload>") in hex.
type Signature struct {
	Digest    string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Digest)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// Sign computes the signature of payload at the given time.
func Sign(secret string, payload []byte, at time.Time, id string) (Signature, error) {
	if secret == "" {
		return Signature{}, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	ts := at.Unix()
	return Signature{Digest: digest(secret, ts, payload), Timestamp: ts, ID: id}, nil
}

// ParseSignature reads signature headers from a received request.
func ParseSignature(h http.Header) (Signature, error) {
	sig := Signature{Digest: h.Get(HeaderSignature), ID: h.Get(HeaderID)}
	raw := h.Get(HeaderTimestamp)
	if sig.Digest == "" || raw == "" {
		return Signature{}, ErrMissingSignature
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, raw)
	}
	sig.Timestamp = ts
	return sig, nil
}

// Verify checks sig against payload. A positive maxAge rejects signatures
// older than maxAge or more than a minute in the future relative to now.
func Verify(secret string, payload []byte, sig Signature, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: age %v", ErrSignatureTooOld, age)
		}
	}
	expected := digest(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Digest)) {
		return ErrInvalidSignature
	}
	return nil
}

func digest(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

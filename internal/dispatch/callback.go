package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
)

// DefaultCallbackTTL bounds how far a callback's timestamp header may
// drift from now before it is rejected, per spec §6 (default 300s).
const DefaultCallbackTTL = 300 * time.Second

// CallbackVerifier checks the worker->coordinator callback's HMAC
// signature and timestamp freshness, grounded on the teacher's
// internal/webhook/signature.go SignatureVerifier (sha256, hex encoding,
// no prefix) narrowed to the one algorithm spec §6 names.
type CallbackVerifier struct {
	Secret string
	TTL    time.Duration
}

func NewCallbackVerifier(secret string) *CallbackVerifier {
	return &CallbackVerifier{Secret: secret, TTL: DefaultCallbackTTL}
}

// Sign computes hex(HMAC_SHA256(body, secret)), the signature a worker
// must send in the X-<Brand>-Signature header.
func (v *CallbackVerifier) Sign(body []byte) string {
	h := hmac.New(sha256.New, []byte(v.Secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the signature against body and that timestamp (RFC3339)
// falls within ±TTL of now. Returns apierr.KindValidation (mapped to 401
// by the caller's transport layer) on any failure, never revealing which
// check failed to the caller.
func (v *CallbackVerifier) Verify(body []byte, timestamp, signature string) error {
	unauthorized := apierr.New(apierr.KindValidation, "CALLBACK_UNAUTHORIZED", "callback signature or timestamp invalid")

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return unauthorized
	}

	ttl := v.TTL
	if ttl <= 0 {
		ttl = DefaultCallbackTTL
	}
	if drift := time.Since(ts); drift > ttl || drift < -ttl {
		return unauthorized
	}

	expected := v.Sign(body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return unauthorized
	}
	return nil
}

// VerifyToken checks an opaque callback token (constant-time) matches
// the one minted for the job, the second half of the §6 callback
// contract alongside the HMAC body signature.
func VerifyToken(expected, got string) bool {
	if len(expected) != len(got) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pytake/flowbroker/internal/secrets"
)

// Envelope is the canonical JSON delivery body (spec §4.G step 1). Field
// order in the struct controls json.Marshal's output order, which is what
// gets signed — the signature covers exactly these bytes.
type Envelope struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	TenantID  string         `json:"tenant_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Severity  string         `json:"severity,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// BuildEnvelope constructs the envelope for an outbound delivery attempt.
func BuildEnvelope(ev Event, unixSeconds int64) Envelope {
	return Envelope{
		EventID: ev.EventID, EventType: ev.EventType, TenantID: ev.TenantID,
		Timestamp: unixSeconds, Data: ev.Payload, Severity: ev.Severity, Context: ev.Context,
	}
}

// MarshalEnvelope renders the envelope's canonical bytes.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Sign computes "sha256=" + lowercase hex HMAC-SHA256(body, secret)
// (spec §4.G step 2).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks an inbound signature in constant time (spec §4.G
// "Signature verification ... constant-time comparison").
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return secrets.Equal(expected, signature)
}

// SignatureHeaders builds the fixed, non-overridable engine headers (spec
// §4.G step 3): Content-Type, X-Webhook-Signature, X-Event-Type,
// X-Event-ID, X-Tenant-ID, X-Timestamp.
func SignatureHeaders(e Envelope, signature string) map[string]string {
	return map[string]string{
		"Content-Type":         "application/json",
		"X-Webhook-Signature":  signature,
		"X-Event-Type":         e.EventType,
		"X-Event-ID":           e.EventID,
		"X-Tenant-ID":          e.TenantID,
		"X-Timestamp":          fmt.Sprintf("%d", e.Timestamp),
	}
}

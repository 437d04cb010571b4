// Package secrets provides the narrow primitives the webhook dispatcher and
// its config surface need around HMAC keys: constant-time comparison and
// masking for anything returned through a list/read API (spec §6
// "secret MUST NOT be returned in list/read APIs exposed to users — return
// masked"). The teacher's internal/secrets package (AES-256-GCM blob
// encryption plus an OS-keyring-backed master key) is not carried forward;
// see DESIGN.md for why.
package secrets

import "crypto/subtle"

// Equal performs a constant-time comparison of two secrets, used for
// inbound webhook signature verification (spec §4.G) so response timing
// cannot leak which byte of the signature first diverged.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Mask renders a secret for display, keeping only a short suffix so
// operators can distinguish rotated keys without ever exposing the value
// (spec §6: webhook configs returned to users must mask secret_key).
func Mask(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return "****"
	}
	return "****" + secret[len(secret)-visible:]
}

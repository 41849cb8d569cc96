package auth

import "crypto/subtle"

// CheckToken reports whether presented matches expected using a
// constant-time comparison, so response timing cannot be used to guess the
// access token byte by byte.
func CheckToken(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// Fingerprint returns a short, log-safe identifier for a token: enough to
// correlate requests from the same caller across log lines without ever
// writing the token itself.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := HashKey(token)
	return h[:12]
}

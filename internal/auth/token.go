package auth

import "strings"

// TokenFromHeader extracts the bearer token from an Authorization header
// value. Returns "" when the header does not carry one.
func TokenFromHeader(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

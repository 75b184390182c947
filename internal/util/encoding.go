package util

import (
	"encoding/base64"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername trims surrounding space and applies NFC so visually
// identical usernames compare equal in rate limiting and logs.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func B64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func B64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

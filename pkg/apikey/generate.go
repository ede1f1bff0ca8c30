package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// Prefix identifies keys minted by this engine.
	Prefix = "dm_"

	// secretLength is the random payload size in bytes (256 bits).
	secretLength = 32

	// prefixChars is how much of the encoded payload the stored display
	// prefix keeps.
	prefixChars = 8
)

// generateKey mints a raw key, its storage hash and its display prefix.
// Format: dm_<base64url(32 random bytes)>. The raw form is handed to the
// caller exactly once and never stored.
func generateKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, secretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("apikey: generate secret: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	raw = Prefix + encoded
	return raw, HashKey(raw), Prefix + encoded[:prefixChars], nil
}

// HashKey computes the one-way lookup hash of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// PrefixOf returns the display prefix of a raw key, safe for logs. Keys that
// do not carry the expected prefix yield an empty string so a foreign
// credential never leaks through a log line.
func PrefixOf(raw string) string {
	if !strings.HasPrefix(raw, Prefix) {
		return ""
	}
	encoded := strings.TrimPrefix(raw, Prefix)
	if len(encoded) < prefixChars {
		return ""
	}
	return Prefix + encoded[:prefixChars]
}

// validFormat reports whether raw is shaped like a key this engine mints.
func validFormat(raw string) bool {
	if !strings.HasPrefix(raw, Prefix) {
		return false
	}
	encoded := strings.TrimPrefix(raw, Prefix)
	if len(encoded) < prefixChars {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(encoded)
	return err == nil
}

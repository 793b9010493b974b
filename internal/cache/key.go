// Package cache persists resolved contact records keyed by normalized
// company name, with a TTL so stale listings age out.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key derives the cache key for a company name: lower-cased, diacritics
// folded, whitespace collapsed, then hashed so arbitrary names make safe
// storage keys.
func Key(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(folded)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Package match scores company names for equivalence and generates the
// name variations the similar-name fallback searches with.
package match

import "strings"

// corporateDesignators are the legal-entity words ignored when comparing
// names. Indonesian (PT, CV, Tbk, Persero) plus the common English forms.
var corporateDesignators = map[string]struct{}{
	"pt":      {},
	"cv":      {},
	"tbk":     {},
	"persero": {},
	"limited": {},
	"ltd":     {},
	"company": {},
}

// tokenSet lower-cases a name, drops corporate designators and returns
// the remaining whitespace tokens as a set.
func tokenSet(name string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tok = strings.Trim(tok, ".,()")
		if tok == "" {
			continue
		}
		if _, skip := corporateDesignators[tok]; skip {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// Similarity returns the Jaccard similarity of the cleaned token sets of
// two company names, in [0, 1]. Either name cleaning to an empty set
// yields 0.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

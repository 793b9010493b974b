// Package search implements the listing lookup surfaces: the primary
// map-listing search, the alternative web search fallback, and the
// identity-aware page fetcher they share.
package search

import (
	"context"
	"strings"

	"github.com/sells-group/contact-resolver/internal/model"
)

// Provider finds a business listing for a query. Implementations return
// (nil, nil) when the surface has no result, and a transient error when
// a retry might succeed.
type Provider interface {
	// Search looks up one query string.
	Search(ctx context.Context, query string) (*model.RawListing, error)

	// SearchVariations tries each name in order and returns the first
	// listing that exposes a phone number.
	SearchVariations(ctx context.Context, names []string) (*model.RawListing, error)
}

// BuildQuery joins the company name with an optional location hint.
func BuildQuery(in model.Input) string {
	parts := []string{strings.TrimSpace(in.Name)}
	if d := strings.TrimSpace(in.District); d != "" {
		parts = append(parts, d)
	}
	if a := strings.TrimSpace(in.Address); a != "" && strings.TrimSpace(in.District) == "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

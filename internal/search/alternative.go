package search

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/normalize"
)

const defaultSearchBaseURL = "https://www.google.com/search"

var (
	altPhonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+62[0-9\s]{9,}`),
		regexp.MustCompile(`0[0-9]{9,}`),
		regexp.MustCompile(`\(\d{3,4}\)\s*\d{3,}[-\s]?\d{3,}`),
		regexp.MustCompile(`\d{3,4}[-\s]?\d{3,}[-\s]?\d{3,}`),
	}
	emailPatternRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// AlternativeSearcher falls back to a general web search when the
// primary listing search finds nothing. The query appends Indonesian
// contact keywords, and extraction prefers a map-listing link on the
// result page over raw text scanning.
type AlternativeSearcher struct {
	fetcher PageFetcher
	listing *ListingSearcher
	baseURL string
}

// NewAlternativeSearcher builds the fallback provider. The listing
// searcher is used when a result links back to a business page.
func NewAlternativeSearcher(fetcher PageFetcher, listing *ListingSearcher) *AlternativeSearcher {
	return &AlternativeSearcher{fetcher: fetcher, listing: listing, baseURL: defaultSearchBaseURL}
}

// SetBaseURL points the searcher at a different surface. Used by tests.
func (s *AlternativeSearcher) SetBaseURL(u string) {
	s.baseURL = strings.TrimSuffix(u, "/")
}

// Search runs "<name> kontak telepon indonesia" and mines the result
// page for contact details.
func (s *AlternativeSearcher) Search(ctx context.Context, name string) (*model.RawListing, error) {
	query := url.Values{"q": {name + " kontak telepon indonesia"}}
	page, err := s.fetcher.Fetch(ctx, s.baseURL+"?"+query.Encode())
	if err != nil {
		return nil, err
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	// A business-page link on the results is better than anything we
	// can scrape off the results themselves.
	if href := firstPlaceLink(doc); href != "" && s.listing != nil {
		zap.S().Debugw("alternative search found listing link", "name", name, "href", href)
		if listing, err := s.followListing(ctx, href); err == nil && listing != nil {
			return listing, nil
		}
	}

	listing := &model.RawListing{Name: name, ListingURL: page.FinalURL}

	text := string(page.Body)
	for _, re := range altPhonePatterns {
		for _, m := range re.FindAllString(text, 5) {
			if normalize.IsPlausiblePhone(m) {
				listing.Phone = strings.TrimSpace(m)
				break
			}
		}
		if listing.Phone != "" {
			break
		}
	}

	if m := emailPatternRe.FindString(text); m != "" && !normalize.IsJunkEmailDomain(m) {
		listing.Email = m
	}

	listing.Website = firstExternalWebsite(doc)

	if listing.Phone == "" && listing.Email == "" && listing.Website == "" {
		return nil, nil
	}
	return listing, nil
}

// SearchVariations tries each name and returns the first result with a
// plausible phone number.
func (s *AlternativeSearcher) SearchVariations(ctx context.Context, names []string) (*model.RawListing, error) {
	for _, name := range names {
		listing, err := s.Search(ctx, name)
		if err != nil {
			return nil, err
		}
		if listing != nil && normalize.IsPlausiblePhone(listing.Phone) {
			return listing, nil
		}
	}
	return nil, nil
}

func (s *AlternativeSearcher) followListing(ctx context.Context, href string) (*model.RawListing, error) {
	page, err := s.fetcher.Fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}
	listing := extractListing(doc)
	if listing != nil {
		listing.ListingURL = href
	}
	return listing, nil
}

// firstExternalWebsite picks the first linked site that looks like a
// company domain rather than the search engine's own properties.
func firstExternalWebsite(doc *goquery.Document) string {
	var website string
	doc.Find("a[href^='http']").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= 10 {
			return false
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		lower := strings.ToLower(href)
		if strings.Contains(lower, "google") || strings.Contains(lower, "youtube") {
			return true
		}
		for _, tld := range []string{".co.id", ".com", ".net", ".org", ".id"} {
			if strings.Contains(lower, tld) {
				website = href
				return false
			}
		}
		return true
	})
	return website
}

package search

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/normalize"
)

const defaultMapsBaseURL = "https://www.google.com/maps/search/"

var (
	phonePatternRe = regexp.MustCompile(`(?:\+62|0)(?:\d[\s.\-]?){7,14}|\(\d+\)[\s.\-]?\d+[\s.\-]?\d+`)
	labelPrefixRe  = regexp.MustCompile(`(?i)^(phone|telepon|address|alamat|website|situs web):\s*`)
)

// ListingSearcher implements Provider against a map-listing surface.
type ListingSearcher struct {
	fetcher PageFetcher
	baseURL string
}

// NewListingSearcher builds the primary search provider.
func NewListingSearcher(fetcher PageFetcher) *ListingSearcher {
	return &ListingSearcher{fetcher: fetcher, baseURL: defaultMapsBaseURL}
}

// SetBaseURL points the searcher at a different surface. Used by tests.
func (s *ListingSearcher) SetBaseURL(u string) {
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	s.baseURL = u
}

// Search fetches the listing page for a query and extracts the business
// fields. A page with no recognisable listing yields (nil, nil).
func (s *ListingSearcher) Search(ctx context.Context, query string) (*model.RawListing, error) {
	page, err := s.fetcher.Fetch(ctx, s.baseURL+url.PathEscape(query))
	if err != nil {
		return nil, err
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	if doc.Find(".section-no-result").Length() > 0 {
		return nil, nil
	}

	listing := extractListing(doc)
	if listing == nil {
		return nil, nil
	}

	// Business detail URLs contain /place/; prefer them over the search
	// URL so the record links straight to the listing.
	listing.ListingURL = page.FinalURL
	if href := firstPlaceLink(doc); href != "" {
		listing.ListingURL = href
	}
	if lat, lng, ok := coordinatesFromURL(listing.ListingURL); ok {
		listing.Latitude = lat
		listing.Longitude = lng
	}

	zap.S().Debugw("listing extracted",
		"query", query,
		"name", listing.Name,
		"has_phone", listing.Phone != "")
	return listing, nil
}

// SearchVariations tries each name and returns the first listing with a
// plausible phone number.
func (s *ListingSearcher) SearchVariations(ctx context.Context, names []string) (*model.RawListing, error) {
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

// extractListing pulls the business fields out of a listing document.
func extractListing(doc *goquery.Document) *model.RawListing {
	listing := &model.RawListing{}

	listing.Name = strings.TrimSpace(doc.Find("h1.DUwDvf, .fontHeadlineLarge").First().Text())

	listing.Phone = attrOrText(doc, "button[data-item-id^='phone'], a[data-item-id^='phone'], button[aria-label*='phone'], button[aria-label*='Phone']")
	if m := phonePatternRe.FindString(listing.Phone); m != "" {
		listing.Phone = strings.TrimSpace(m)
	}

	listing.Address = attrOrText(doc, "button[data-item-id='address'], div[data-item-id='address']")
	listing.Website = attrOrText(doc, "a[data-item-id='authority'], button[data-item-id='authority']")
	listing.Category = strings.TrimSpace(doc.Find("button[jsaction*='category'], .DkEaL").First().Text())

	listing.Rating = strings.TrimSpace(doc.Find("span.MW4etd, div.F7nice > span:first-child").First().Text())
	reviews := strings.TrimSpace(doc.Find("span.UY7F9").First().Text())
	listing.ReviewsCount = strings.Trim(reviews, "()")

	if listing.IsEmpty() {
		return nil
	}
	return listing
}

// attrOrText prefers an element's aria-label over its text, stripping
// display label prefixes either way.
func attrOrText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	value, ok := sel.Attr("aria-label")
	if !ok || strings.TrimSpace(value) == "" {
		value = sel.Text()
	}
	return strings.TrimSpace(labelPrefixRe.ReplaceAllString(strings.TrimSpace(value), ""))
}

func firstPlaceLink(doc *goquery.Document) string {
	var href string
	doc.Find("a[href*='/place/']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if h, ok := sel.Attr("href"); ok && strings.Contains(h, "/place/") {
			href = h
			return false
		}
		return true
	})
	return href
}

var coordsRe = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)

// coordinatesFromURL parses the @lat,lng segment map URLs carry.
func coordinatesFromURL(u string) (float64, float64, bool) {
	m := coordsRe.FindStringSubmatch(u)
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

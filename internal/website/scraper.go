package website

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/normalize"
	"github.com/sells-group/contact-resolver/internal/search"
)

const defaultMaxPages = 3

var (
	sitePhonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d{1,4}[-.\s]?\d{1,3}[-.\s]?\d{2,4}[-.\s]?\d{2,4}[-.\s]?\d{2,4}`),
		regexp.MustCompile(`0\d{2,3}[-.\s]?\d{2,3}[-.\s]?\d{3,4}`),
		regexp.MustCompile(`\(\d{2,4}\)[-.\s]?\d{2,3}[-.\s]?\d{3,4}`),
	}
	siteEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nonDigitRe  = regexp.MustCompile(`\D`)

	contactSectionSelector = `footer, .footer, .contact, .kontak, #contact, #kontak, .contact-info, [class*="contact"], [class*="kontak"]`
)

// contactLinkWords mark a link as leading to a contact or about page.
var contactLinkWords = []string{
	"contact", "kontak", "hubungi", "about", "tentang", "about-us", "hubungi-kami",
}

// ContactInfo is what a website yields: zero or more phones, at most one
// email, each with provenance.
type ContactInfo struct {
	Phones []model.PhoneNumber
	Email  *model.EmailAddress
}

// Empty reports whether extraction found nothing.
func (c *ContactInfo) Empty() bool {
	return c == nil || (len(c.Phones) == 0 && c.Email == nil)
}

// Scraper crawls a company website for contact details.
type Scraper struct {
	fetcher  search.PageFetcher
	known    *KnownContacts
	maxPages int
	phoneOpt normalize.PhoneOptions
}

// NewScraper builds a website scraper. known may be nil to disable the
// curated fallback.
func NewScraper(fetcher search.PageFetcher, known *KnownContacts, opts ...ScraperOption) *Scraper {
	s := &Scraper{fetcher: fetcher, known: known, maxPages: defaultMaxPages}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithMaxPages caps how many pages are crawled per site.
func WithMaxPages(n int) ScraperOption {
	return func(s *Scraper) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithPhoneOptions sets the phone normalization applied to extracted
// numbers.
func WithPhoneOptions(o normalize.PhoneOptions) ScraperOption {
	return func(s *Scraper) { s.phoneOpt = o }
}

// ExtractContacts crawls the site and returns everything found. Live
// extraction that comes back empty falls through to the curated table.
// Fetch failures are not fatal: enrichment is best effort.
func (s *Scraper) ExtractContacts(ctx context.Context, siteURL string) (*ContactInfo, error) {
	siteURL = normalize.URL(siteURL)
	if siteURL == "" {
		return &ContactInfo{}, nil
	}
	parsed, err := url.Parse(siteURL)
	if err != nil || parsed.Host == "" {
		zap.S().Debugw("skipping website with unparseable url", "url", siteURL)
		return &ContactInfo{}, nil
	}

	info := &ContactInfo{}
	visited := map[string]bool{}

	// Homepage first, with the www/non-www alternate as backup.
	var homepage *goquery.Document
	var homepageURL string
	for _, candidate := range withAlternateHost(parsed) {
		page, err := s.fetcher.Fetch(ctx, candidate)
		if err != nil {
			zap.S().Debugw("homepage fetch failed", "url", candidate, "error", err)
			continue
		}
		doc, err := page.Document()
		if err != nil {
			continue
		}
		homepage = doc
		homepageURL = candidate
		break
	}
	if homepage == nil {
		s.applyKnown(siteURL, info)
		return info, nil
	}

	visited[homepageURL] = true
	s.extractFromDoc(homepage, homepageURL, true, info)

	// Follow contact/about links on the same domain.
	for _, link := range contactLinks(homepage, homepageURL) {
		if len(visited) >= s.maxPages {
			break
		}
		if visited[link] {
			continue
		}
		visited[link] = true

		page, err := s.fetcher.Fetch(ctx, link)
		if err != nil {
			zap.S().Debugw("contact page fetch failed", "url", link, "error", err)
			continue
		}
		doc, err := page.Document()
		if err != nil {
			continue
		}
		s.extractFromDoc(doc, link, false, info)
	}

	if info.Empty() && s.applyKnown(siteURL, info) {
		zap.S().Infow("using curated contacts for site", "url", siteURL)
	}
	return info, nil
}

// applyKnown fills info from the curated table. Reports whether an
// entry existed.
func (s *Scraper) applyKnown(siteURL string, info *ContactInfo) bool {
	if s.known == nil {
		return false
	}
	entry, ok := s.known.Lookup(siteURL)
	if !ok {
		return false
	}
	prov := model.Provenance{Page: model.PageKnownData, URL: siteURL}
	for _, kp := range entry.Phones {
		pn := normalize.Phone(kp.Number, s.phoneOpt)
		if pn.Normalized == "" {
			continue
		}
		pn.Provenance = prov
		pn.Provenance.Kind = kp.Kind
		info.Phones = appendPhone(info.Phones, pn)
	}
	if entry.Email != "" && info.Email == nil {
		em := normalize.Email(entry.Email)
		em.Provenance = prov
		info.Email = &em
	}
	return true
}

// extractFromDoc mines one page and merges findings add-only.
func (s *Scraper) extractFromDoc(doc *goquery.Document, pageURL string, homepage bool, info *ContactInfo) {
	pageKind := kindOfPage(pageURL, homepage)
	prov := func(kind string) model.Provenance {
		return model.Provenance{Page: pageKind, URL: pageURL, Kind: kind}
	}

	addPhone := func(raw, kind string) {
		pn := normalize.Phone(raw, s.phoneOpt)
		if pn.Normalized == "" {
			return
		}
		pn.Provenance = prov(kind)
		info.Phones = appendPhone(info.Phones, pn)
	}

	// tel: links are the most reliable source.
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			addPhone(strings.TrimPrefix(href, "tel:"), guessPhoneRole(href, pageURL))
		}
	})

	// Contact sections and footers next, then the full page text.
	sectionText := doc.Find(contactSectionSelector).Text()
	fullText := doc.Find("body").Text()
	for _, text := range []string{sectionText, fullText} {
		for _, re := range sitePhonePatterns {
			for _, m := range re.FindAllString(text, 10) {
				addPhone(m, guessPhoneRole(m, pageURL))
			}
		}
	}

	if info.Email == nil {
		if email := extractEmail(doc, sectionText, fullText); email != "" {
			em := normalize.Email(email)
			em.Provenance = prov("")
			info.Email = &em
		}
	}
}

// extractEmail prefers mailto links, then contact sections, then the
// whole page.
func extractEmail(doc *goquery.Document, sectionText, fullText string) string {
	var found string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if addr != "" && !normalize.IsJunkEmailDomain(addr) {
			found = addr
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	for _, text := range []string{sectionText, fullText} {
		for _, m := range siteEmailRe.FindAllString(text, 10) {
			if !normalize.IsJunkEmailDomain(m) {
				return m
			}
		}
	}
	return ""
}

// contactLinks returns same-domain links that look like contact or
// about pages.
func contactLinks(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "mailto:") {
			return
		}

		linkText := strings.ToLower(sel.Text())
		hrefLower := strings.ToLower(href)
		matched := false
		for _, word := range contactLinkWords {
			if strings.Contains(linkText, word) || strings.Contains(hrefLower, word) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !sameDomain(abs, base) || seen[abs.String()] {
			return
		}
		seen[abs.String()] = true
		out = append(out, abs.String())
	})
	return out
}

func sameDomain(a, b *url.URL) bool {
	return strings.TrimPrefix(a.Host, "www.") == strings.TrimPrefix(b.Host, "www.")
}

// withAlternateHost returns the URL plus its www/non-www twin.
func withAlternateHost(u *url.URL) []string {
	alt := *u
	if strings.HasPrefix(u.Host, "www.") {
		alt.Host = strings.TrimPrefix(u.Host, "www.")
	} else {
		alt.Host = "www." + u.Host
	}
	return []string{u.String(), alt.String()}
}

func kindOfPage(pageURL string, homepage bool) model.PageKind {
	if homepage {
		return model.PageHomepage
	}
	lower := strings.ToLower(pageURL)
	if strings.Contains(lower, "contact") || strings.Contains(lower, "kontak") ||
		strings.Contains(lower, "hubungi") {
		return model.PageContact
	}
	return model.PageOther
}

// guessPhoneRole labels a number from its digits and page context.
func guessPhoneRole(phone, pageURL string) string {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	pageLower := strings.ToLower(pageURL)

	switch digits {
	case "121", "123", "150":
		return "Hotline/Customer Service"
	}

	switch {
	case strings.Contains(pageLower, "support") || strings.Contains(pageLower, "bantuan"):
		return "Support"
	case strings.Contains(pageLower, "sales") || strings.Contains(pageLower, "marketing"):
		return "Sales/Marketing"
	case strings.Contains(pageLower, "contact") || strings.Contains(pageLower, "kontak") ||
		strings.Contains(pageLower, "hubungi"):
		return "General Contact"
	}
	return "Office"
}

// appendPhone adds a phone if its normalized form is not already held.
func appendPhone(phones []model.PhoneNumber, pn model.PhoneNumber) []model.PhoneNumber {
	for _, existing := range phones {
		if existing.Normalized == pn.Normalized {
			return phones
		}
	}
	return append(phones, pn)
}

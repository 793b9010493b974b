package search

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/identity"
	"github.com/sells-group/contact-resolver/internal/resilience"
)

const maxBodyBytes = 2 * 1024 * 1024

// Page is one fetched HTML document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Document parses the page body.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	return doc, eris.Wrap(err, "parse page")
}

// PageFetcher retrieves HTML documents.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches pages with the current rotating identity: the
// pool's user agent on every request and its proxy, when one is held,
// as the outbound transport.
type HTTPFetcher struct {
	pool    *identity.Pool
	timeout time.Duration
}

// NewHTTPFetcher builds a fetcher over an identity pool.
func NewHTTPFetcher(pool *identity.Pool) *HTTPFetcher {
	return &HTTPFetcher{pool: pool, timeout: 20 * time.Second}
}

// SetTimeout overrides the per-request timeout.
func (f *HTTPFetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

func (f *HTTPFetcher) client(id identity.Identity) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if id.Proxy != nil {
		transport.Proxy = http.ProxyURL(id.Proxy.URL())
	}
	return &http.Client{Timeout: f.timeout, Transport: transport}
}

// Fetch retrieves a URL. Network failures, transient statuses and
// detected blocks come back as transient errors so the caller's retry
// policy applies.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	id := f.pool.Current()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9,en;q=0.8")

	resp, err := f.client(id).Do(req)
	if err != nil {
		f.pool.MarkFailed(id)
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"), resp.StatusCode)
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		f.pool.MarkFailed(id)
		zap.S().Warnw("fetch blocked", "url", url, "block_type", blockType)
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: blocked (%s)", blockType), resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("fetch: status %d", resp.StatusCode)
	}

	return &Page{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

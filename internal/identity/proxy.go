package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProxyListURL = "https://free-proxy-list.net/"
	proxyRefreshPeriod  = time.Hour
	healthCheckURL      = "https://httpbin.org/ip"
	healthCheckTimeout  = 8 * time.Second
	maxHealthChecks     = 20
)

// Proxy is a single outbound proxy endpoint.
type Proxy struct {
	Host  string
	Port  string
	HTTPS bool
}

// URL renders the proxy as an http URL suitable for http.Transport.
func (p Proxy) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: p.Host + ":" + p.Port}
}

func (p Proxy) String() string {
	return p.Host + ":" + p.Port
}

// ProxyDirectory maintains a refreshed list of working proxies scraped
// from a public listing page. The directory is optional: a pool with no
// directory simply makes direct connections.
type ProxyDirectory struct {
	mu        sync.Mutex
	listURL   string
	client    *http.Client
	proxies   []Proxy
	refreshed time.Time
	nowFunc   func() time.Time
}

// NewProxyDirectory builds a directory backed by the default public
// proxy list.
func NewProxyDirectory(client *http.Client) *ProxyDirectory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProxyDirectory{
		listURL: defaultProxyListURL,
		client:  client,
		nowFunc: time.Now,
	}
}

// Proxies returns the current working set, refreshing it if the hourly
// window has lapsed. An empty slice with nil error means no proxy passed
// the health check and callers should connect directly.
func (d *ProxyDirectory) Proxies(ctx context.Context) ([]Proxy, error) {
	d.mu.Lock()
	fresh := d.nowFunc().Sub(d.refreshed) < proxyRefreshPeriod && d.proxies != nil
	if fresh {
		out := make([]Proxy, len(d.proxies))
		copy(out, d.proxies)
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	candidates, err := d.fetchCandidates(ctx)
	if err != nil {
		return nil, err
	}
	working := d.healthCheck(ctx, candidates)

	d.mu.Lock()
	d.proxies = working
	d.refreshed = d.nowFunc()
	d.mu.Unlock()

	zap.S().Infow("proxy directory refreshed",
		"candidates", len(candidates),
		"working", len(working))

	out := make([]Proxy, len(working))
	copy(out, working)
	return out, nil
}

// fetchCandidates scrapes the proxy table from the listing page and
// keeps the HTTPS-capable entries.
func (d *ProxyDirectory) fetchCandidates(ctx context.Context) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.listURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build proxy list request")
	}
	req.Header.Set("User-Agent", userAgents[0])

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch proxy list")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("proxy list returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "parse proxy list")
	}

	var out []Proxy
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}
		p := Proxy{
			Host:  strings.TrimSpace(cells.Eq(0).Text()),
			Port:  strings.TrimSpace(cells.Eq(1).Text()),
			HTTPS: strings.EqualFold(strings.TrimSpace(cells.Eq(6).Text()), "yes"),
		}
		if p.Host == "" || p.Port == "" || !p.HTTPS {
			return
		}
		out = append(out, p)
	})
	return out, nil
}

// healthCheck probes candidates concurrently and returns the ones that
// answer within the timeout. At most maxHealthChecks candidates are
// probed.
func (d *ProxyDirectory) healthCheck(ctx context.Context, candidates []Proxy) []Proxy {
	if len(candidates) > maxHealthChecks {
		candidates = candidates[:maxHealthChecks]
	}

	var (
		mu      sync.Mutex
		working []Proxy
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, p := range candidates {
		p := p
		g.Go(func() error {
			if probeProxy(ctx, p) {
				mu.Lock()
				working = append(working, p)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return working
}

func probeProxy(ctx context.Context, p Proxy) bool {
	client := &http.Client{
		Timeout: healthCheckTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(p.URL()),
		},
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthCheckURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SetListURL points the directory at a different listing page. Used by
// tests and by deployments with a private proxy list.
func (d *ProxyDirectory) SetListURL(u string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listURL = u
	d.proxies = nil
	d.refreshed = time.Time{}
}

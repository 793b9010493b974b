package website

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-resolver/internal/identity"
	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/search"
)

func newTestScraper(t *testing.T, mux *http.ServeMux, known *KnownContacts) (*Scraper, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	fetcher := search.NewHTTPFetcher(identity.NewPool())
	return NewScraper(fetcher, known), srv
}

func TestScraperExtractsTelAndMailto(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
		<a href="tel:+622139705055">Call us</a>
		<a href="mailto:info@acme.co.id?subject=hi">Email us</a>
		<p>Some body text long enough to not look like a javascript shell page at all.</p>
		</body></html>`)
	})

	s, srv := newTestScraper(t, mux, nil)
	info, err := s.ExtractContacts(context.Background(), srv.URL)
	require.NoError(t, err)

	require.NotEmpty(t, info.Phones)
	assert.Contains(t, info.Phones[0].Normalized, "+62")
	assert.Equal(t, model.PageHomepage, info.Phones[0].Provenance.Page)
	assert.Contains(t, info.Phones[0].Provenance.URL, srv.URL)
	require.NotNil(t, info.Email)
	assert.Equal(t, "info@acme.co.id", info.Email.Address)
	assert.True(t, info.Email.Valid)
	assert.Equal(t, model.PageHomepage, info.Email.Provenance.Page)
}

func TestScraperFollowsContactPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
		<a href="/kontak">Hubungi Kami</a>
		<p>Homepage with no contact details but plenty of padding text to pass checks.</p>
		</body></html>`)
	})
	mux.HandleFunc("/kontak", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
		<div class="contact-info">Telepon: 021-5551234 dan email kontak@acme.co.id</div>
		<p>Padding text to make this page long enough for the block detector checks.</p>
		</body></html>`)
	})

	s, srv := newTestScraper(t, mux, nil)
	info, err := s.ExtractContacts(context.Background(), srv.URL)
	require.NoError(t, err)

	require.NotEmpty(t, info.Phones)
	assert.Equal(t, model.PageContact, info.Phones[0].Provenance.Page)
	assert.Contains(t, info.Phones[0].Provenance.URL, "/kontak")
	require.NotNil(t, info.Email)
	assert.Equal(t, "kontak@acme.co.id", info.Email.Address)
}

func TestScraperDeduplicatesPhones(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
		<a href="tel:021-5551234">Call</a>
		<footer>Telepon: 021-5551234 for anyone who missed the link above, padding padding.</footer>
		</body></html>`)
	})

	s, srv := newTestScraper(t, mux, nil)
	info, err := s.ExtractContacts(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, info.Phones, 1)
}

func TestScraperIgnoresJunkEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
		<a href="mailto:test@example.com">placeholder</a>
		<p>Contact real people at real@acme.co.id and some padding text for length checks here.</p>
		</body></html>`)
	})

	s, srv := newTestScraper(t, mux, nil)
	info, err := s.ExtractContacts(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, info.Email)
	assert.Equal(t, "real@acme.co.id", info.Email.Address)
}

func TestScraperKnownContactsFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>A fully client-rendered page with nothing extractable in plain markup, padded out for length.</p></body></html>`)
	})

	known := NewKnownContacts()
	s, srv := newTestScraper(t, mux, known)

	// The curated table keys on domains; the test server host is an IP,
	// so register it.
	known.entries[domainOf(srv.URL)] = KnownEntry{
		Phones: []KnownPhone{{Number: "021-5559876", Kind: "Head Office"}},
		Email:  "cs@acme.co.id",
	}

	info, err := s.ExtractContacts(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotEmpty(t, info.Phones)
	assert.Equal(t, model.PageKnownData, info.Phones[0].Provenance.Page)
	assert.Equal(t, "Head Office", info.Phones[0].Provenance.Kind)
	require.NotNil(t, info.Email)
	assert.Equal(t, "cs@acme.co.id", info.Email.Address)
}

func TestScraperEmptyURL(t *testing.T) {
	fetcher := search.NewHTTPFetcher(identity.NewPool())
	s := NewScraper(fetcher, nil)

	info, err := s.ExtractContacts(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, info.Empty())
}

func TestKnownContactsLookup(t *testing.T) {
	t.Parallel()

	kc := NewKnownContacts()

	entry, ok := kc.Lookup("https://www.kai.id/corporate")
	require.True(t, ok)
	assert.Equal(t, "cs@kai.id", entry.Email)
	assert.NotEmpty(t, entry.Phones)

	_, ok = kc.Lookup("https://unknown-company.co.id")
	assert.False(t, ok)
}

func TestLoadKnownContactsYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "known.yaml")
	content := `
acme.co.id:
  phones:
    - number: "021-5551234"
      kind: "Head Office"
  email: info@acme.co.id
kai.id:
  phones:
    - number: "150"
      kind: "New Hotline"
  email: override@kai.id
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	kc, err := LoadKnownContacts(path)
	require.NoError(t, err)

	entry, ok := kc.Lookup("https://acme.co.id")
	require.True(t, ok)
	assert.Equal(t, "info@acme.co.id", entry.Email)
	require.Len(t, entry.Phones, 1)
	assert.Equal(t, "Head Office", entry.Phones[0].Kind)

	// File entries override the built-ins.
	entry, ok = kc.Lookup("https://kai.id")
	require.True(t, ok)
	assert.Equal(t, "override@kai.id", entry.Email)
}

func TestLoadKnownContactsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadKnownContacts("/nonexistent/known.yaml")
	assert.Error(t, err)
}

func TestGuessPhoneRole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hotline/Customer Service", guessPhoneRole("121", "https://kai.id"))
	assert.Equal(t, "General Contact", guessPhoneRole("021-5551234", "https://acme.co.id/kontak"))
	assert.Equal(t, "Support", guessPhoneRole("021-5551234", "https://acme.co.id/bantuan"))
	assert.Equal(t, "Sales/Marketing", guessPhoneRole("021-5551234", "https://acme.co.id/sales"))
	assert.Equal(t, "Office", guessPhoneRole("021-5551234", "https://acme.co.id/"))
}

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-resolver/internal/cache"
	"github.com/sells-group/contact-resolver/internal/identity"
	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/resilience"
	"github.com/sells-group/contact-resolver/internal/website"
)

// fakeProvider scripts sequential Search responses and records calls.
type fakeProvider struct {
	results []fakeResult
	calls   int

	variationResult *fakeResult
	gotVariations   []string
}

type fakeResult struct {
	listing *model.RawListing
	err     error
}

func (f *fakeProvider) Search(_ context.Context, _ string) (*model.RawListing, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return nil, nil
	}
	return f.results[i].listing, f.results[i].err
}

func (f *fakeProvider) SearchVariations(_ context.Context, names []string) (*model.RawListing, error) {
	f.gotVariations = names
	if f.variationResult == nil {
		return nil, nil
	}
	return f.variationResult.listing, f.variationResult.err
}

// memCache is an in-memory cache.Cache for call accounting.
type memCache struct {
	entries map[string]*model.ContactRecord
	puts    int
	getErr  error
	putErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*model.ContactRecord{}}
}

func (m *memCache) Get(_ context.Context, name string) (*model.ContactRecord, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	rec, ok := m.entries[cache.Key(name)]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	cp.FromCache = true
	return &cp, true, nil
}

func (m *memCache) Put(_ context.Context, name string, rec *model.ContactRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	if !cache.Cacheable(rec) {
		return nil
	}
	m.puts++
	cp := *rec
	m.entries[cache.Key(name)] = &cp
	return nil
}

func (m *memCache) Clear(context.Context) (int, error) {
	n := len(m.entries)
	m.entries = map[string]*model.ContactRecord{}
	return n, nil
}

func (m *memCache) Sweep(context.Context) (int, error) { return 0, nil }
func (m *memCache) Migrate(context.Context) error      { return nil }
func (m *memCache) Close() error                       { return nil }

type fakeEnricher struct {
	info   *website.ContactInfo
	err    error
	calls  int
	gotURL string
}

func (f *fakeEnricher) ExtractContacts(_ context.Context, siteURL string) (*website.ContactInfo, error) {
	f.calls++
	f.gotURL = siteURL
	return f.info, f.err
}

func fastRate() *resilience.RateController {
	return resilience.NewRateController(
		resilience.WithSleepFunc(func(context.Context, time.Duration) error { return nil }),
		resilience.WithFloorLimit(rate.Inf),
	)
}

func newOrchestrator(p *fakeProvider, opts Options, extra ...Option) *Orchestrator {
	extra = append(extra, WithRateController(fastRate()))
	return New(p, opts, extra...)
}

func TestResolveBlankName(t *testing.T) {
	o := newOrchestrator(&fakeProvider{}, DefaultOptions())

	_, err := o.Resolve(context.Background(), model.Input{Name: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrInvalidInput)
}

func TestResolvePrimaryListing(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:       "PT Example Indonesia",
		Address:    "Jl. Sudirman No. 1, Jakarta",
		Phone:      "021 3907 5055",
		Category:   "Logistics",
		ListingURL: "https://maps.example.com/place/pt-example",
	}}}}
	o := newOrchestrator(p, DefaultOptions())

	rec, err := o.Resolve(context.Background(), model.Input{Name: "PT Example Indonesia"})
	require.NoError(t, err)

	assert.True(t, rec.Found)
	assert.Equal(t, model.SourceMapListing, rec.DataSource)
	assert.Equal(t, "https://maps.example.com/place/pt-example", rec.SourceURL)
	require.Len(t, rec.Phones, 1)
	assert.Equal(t, model.PhoneLandline, rec.Phones[0].Kind)
	assert.Contains(t, rec.Phones[0].Label, "Jakarta")
	assert.Equal(t, model.PageMapListing, rec.Phones[0].Provenance.Page)
	assert.Equal(t, 1, p.calls)
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	transient := resilience.NewTransientError(assert.AnError, 503)
	p := &fakeProvider{results: []fakeResult{
		{err: transient},
		{err: transient},
		{listing: &model.RawListing{Name: "Acme", Phone: "0812 3456 7890"}},
	}}
	pool := identity.NewPool(identity.WithAgents([]string{"agent-a", "agent-b"}))
	before := pool.Current().UserAgent

	opts := DefaultOptions()
	o := newOrchestrator(p, opts, WithIdentityPool(pool))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, 3, p.calls)

	// Two consecutive failures trigger a rotation.
	assert.NotEqual(t, before, pool.Current().UserAgent)
}

func TestResolveExhaustionReturnsNotFound(t *testing.T) {
	transient := resilience.NewTransientError(assert.AnError, 503)
	p := &fakeProvider{results: []fakeResult{{err: transient}, {err: transient}, {err: transient}}}
	store := newMemCache()

	opts := DefaultOptions()
	opts.EnableSimilarSearch = false
	o := newOrchestrator(p, opts, WithCache(store))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Ghost Corp"})
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, "Ghost Corp", rec.Name)
	assert.Zero(t, store.puts)
}

func TestResolveCacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:  "Acme",
		Phone: "0812 3456 7890",
	}}}}
	store := newMemCache()
	o := newOrchestrator(p, DefaultOptions(), WithCache(store))

	first, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)
	assert.True(t, first.Found)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, store.puts)

	second, err := o.Resolve(context.Background(), model.Input{Name: "  acme "})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.FirstPhone(), second.FirstPhone())
	assert.Equal(t, 1, p.calls)
}

func TestResolveCacheErrorTreatedAsMiss(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:  "Acme",
		Phone: "0812 3456 7890",
	}}}}
	store := newMemCache()
	store.getErr = assert.AnError

	o := newOrchestrator(p, DefaultOptions(), WithCache(store))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, 1, p.calls)
}

func TestResolveAlternativeSearchFallback(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: nil}}}
	alt := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:  "Acme",
		Phone: "(021) 555-1234",
		Email: "info@acme.co.id",
	}}}}

	opts := DefaultOptions()
	opts.EnableSimilarSearch = false
	o := newOrchestrator(p, opts, WithAlternative(alt))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)

	assert.True(t, rec.Found)
	assert.Equal(t, model.SourceAlternativeSearch, rec.DataSource)
	require.Len(t, rec.Phones, 1)
	require.NotNil(t, rec.Email)
	assert.Equal(t, "info@acme.co.id", rec.Email.Address)
	assert.Equal(t, 1, alt.calls)
}

func TestResolveSimilarNameMerged(t *testing.T) {
	p := &fakeProvider{
		results: []fakeResult{{listing: nil}},
		variationResult: &fakeResult{listing: &model.RawListing{
			Name:       "PT Maju Jaya",
			Phone:      "021-39705055",
			Address:    "Jl. Gatot Subroto, Jakarta",
			ListingURL: "https://maps.example.com/place/maju-jaya",
		}},
	}
	o := newOrchestrator(p, DefaultOptions())

	rec, err := o.Resolve(context.Background(), model.Input{Name: "PT Maju Jaya Abadi"})
	require.NoError(t, err)

	assert.True(t, rec.Found)
	assert.Equal(t, "PT Maju Jaya", rec.Name)
	assert.Equal(t, "PT Maju Jaya Abadi", rec.MatchedFrom)
	assert.GreaterOrEqual(t, rec.SimilarityScore, 0.6)
	assert.Equal(t, model.SourceSimilarMapListing, rec.DataSource)
	require.Len(t, rec.Phones, 1)

	// Only the generated variations are searched, never the original.
	require.NotEmpty(t, p.gotVariations)
	assert.NotContains(t, p.gotVariations, "PT Maju Jaya Abadi")
}

func TestResolveSimilarNameBelowThreshold(t *testing.T) {
	p := &fakeProvider{
		results: []fakeResult{{listing: nil}},
		variationResult: &fakeResult{listing: &model.RawListing{
			Name:  "Warung Kopi Senang",
			Phone: "021-39705055",
		}},
	}
	o := newOrchestrator(p, DefaultOptions())

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Bintang Transportasi Utama"})
	require.NoError(t, err)

	assert.False(t, rec.Found)
	assert.Empty(t, rec.Phones)
	assert.Empty(t, rec.MatchedFrom)
	require.NotNil(t, rec.SimilarCandidate)
	assert.Equal(t, "Warung Kopi Senang", rec.SimilarCandidate.Name)
	assert.Less(t, rec.SimilarCandidate.Score, 0.6)
}

func TestResolveWebsiteEnrichment(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:    "Acme",
		Address: "Jl. Thamrin No. 10, Jakarta",
		Website: "https://acme.co.id",
	}}}}
	enricher := &fakeEnricher{info: &website.ContactInfo{
		Phones: []model.PhoneNumber{{
			Raw:        "+62 21 555 1234",
			Normalized: "+62215551234",
			Kind:       model.PhoneLandline,
			Provenance: model.Provenance{Page: model.PageHomepage, URL: "https://acme.co.id"},
		}},
		Email: &model.EmailAddress{
			Address:    "halo@acme.co.id",
			Domain:     "acme.co.id",
			Valid:      true,
			Provenance: model.Provenance{Page: model.PageHomepage, URL: "https://acme.co.id"},
		},
	}}

	opts := DefaultOptions()
	opts.EnableSimilarSearch = false
	o := newOrchestrator(p, opts, WithEnricher(enricher))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, 1, enricher.calls)
	assert.Equal(t, "https://acme.co.id", enricher.gotURL)
	assert.Equal(t, model.SourceWebsite, rec.DataSource)
	require.Len(t, rec.Phones, 1)
	assert.Equal(t, model.PageHomepage, rec.Phones[0].Provenance.Page)
	require.NotNil(t, rec.Email)
	assert.Equal(t, "halo@acme.co.id", rec.Email.Address)
	// Fields from the listing survive enrichment untouched.
	assert.Equal(t, "Jl. Thamrin No. 10, Jakarta", rec.Address)
}

func TestResolveEnrichmentFailureKeepsRecord(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:    "Acme",
		Address: "Jl. Thamrin No. 10, Jakarta",
		Website: "https://acme.co.id",
	}}}}
	enricher := &fakeEnricher{err: assert.AnError}

	opts := DefaultOptions()
	opts.EnableSimilarSearch = false
	o := newOrchestrator(p, opts, WithEnricher(enricher))

	rec, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, model.SourceMapListing, rec.DataSource)
	assert.Equal(t, "Jl. Thamrin No. 10, Jakarta", rec.Address)
}

func TestResolveSkipsEnrichmentWhenComplete(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{listing: &model.RawListing{
		Name:    "Acme",
		Phone:   "0812 3456 7890",
		Email:   "info@acme.co.id",
		Website: "https://acme.co.id",
	}}}}
	enricher := &fakeEnricher{}

	opts := DefaultOptions()
	opts.EnableSimilarSearch = false
	o := newOrchestrator(p, opts, WithEnricher(enricher))

	_, err := o.Resolve(context.Background(), model.Input{Name: "Acme"})
	require.NoError(t, err)
	assert.Zero(t, enricher.calls)
}

func TestResolveContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(&fakeProvider{}, DefaultOptions())
	_, err := o.Resolve(ctx, model.Input{Name: "Acme"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeListingAddOnly(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeProvider{}, DefaultOptions())
	rec := &model.ContactRecord{
		Name:       "Acme",
		Address:    "original address",
		DataSource: model.SourceMapListing,
	}

	o.mergeListing(rec, &model.RawListing{
		Address:  "should not replace",
		Phone:    "0812 3456 7890",
		Category: "Logistics",
	}, model.SourceAlternativeSearch)

	assert.Equal(t, "original address", rec.Address)
	assert.Equal(t, model.SourceMapListing, rec.DataSource)
	assert.Equal(t, "Logistics", rec.Category)
	assert.Len(t, rec.Phones, 1)
}

func TestMergeListingDeduplicatesPhones(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeProvider{}, DefaultOptions())
	rec := &model.ContactRecord{Name: "Acme"}

	o.mergeListing(rec, &model.RawListing{Phone: "0812 3456 7890"}, model.SourceMapListing)
	o.mergeListing(rec, &model.RawListing{Phone: "+62 812-3456-7890"}, model.SourceAlternativeSearch)

	assert.Len(t, rec.Phones, 1)
}

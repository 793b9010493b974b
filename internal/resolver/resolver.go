// Package resolver drives a single company through the resolution
// pipeline: cache lookup, primary listing search, alternative search,
// fuzzy-name fallback, and website enrichment, merging everything into
// one ContactRecord.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/cache"
	"github.com/sells-group/contact-resolver/internal/identity"
	"github.com/sells-group/contact-resolver/internal/match"
	"github.com/sells-group/contact-resolver/internal/model"
	"github.com/sells-group/contact-resolver/internal/normalize"
	"github.com/sells-group/contact-resolver/internal/resilience"
	"github.com/sells-group/contact-resolver/internal/search"
	"github.com/sells-group/contact-resolver/internal/website"
)

// Options is the per-run configuration surface.
type Options struct {
	MaxRetries            int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay            time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	EnableSimilarSearch   bool          `mapstructure:"enable_similar_search" yaml:"enable_similar_search"`
	SimilarityThreshold   float64       `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	EnableWebsiteScraping bool          `mapstructure:"enable_website_scraping" yaml:"enable_website_scraping"`
	PreservePhoneFormat   bool          `mapstructure:"preserve_phone_format" yaml:"preserve_phone_format"`
	DefaultRegion         string        `mapstructure:"default_region" yaml:"default_region"`
	UseCache              bool          `mapstructure:"use_cache" yaml:"use_cache"`
	CacheDays             int           `mapstructure:"cache_days" yaml:"cache_days"`
	UseRotatingIdentities bool          `mapstructure:"use_rotating_identities" yaml:"use_rotating_identities"`
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		MaxRetries:            3,
		RetryDelay:            2 * time.Second,
		EnableSimilarSearch:   true,
		SimilarityThreshold:   0.6,
		EnableWebsiteScraping: true,
		DefaultRegion:         "ID",
		UseCache:              true,
		CacheDays:             30,
		UseRotatingIdentities: true,
	}
}

// Enricher mines a company website for contact data.
type Enricher interface {
	ExtractContacts(ctx context.Context, siteURL string) (*website.ContactInfo, error)
}

// Orchestrator resolves companies one at a time. It owns its rate
// controller and identity pool; run independent orchestrators for
// parallelism, sharing only the cache.
type Orchestrator struct {
	opts Options

	primary     search.Provider
	alternative search.Provider
	enricher    Enricher
	store       cache.Cache
	rate        *resilience.RateController
	pool        *identity.Pool

	log *zap.SugaredLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAlternative installs the fallback text-search provider.
func WithAlternative(p search.Provider) Option {
	return func(o *Orchestrator) { o.alternative = p }
}

// WithEnricher installs the website scraper.
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithCache installs the result cache backend.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.store = c }
}

// WithIdentityPool installs the rotation pool.
func WithIdentityPool(p *identity.Pool) Option {
	return func(o *Orchestrator) { o.pool = p }
}

// WithRateController replaces the stock controller, mainly for tests.
func WithRateController(rc *resilience.RateController) Option {
	return func(o *Orchestrator) { o.rate = rc }
}

// New builds an orchestrator around the primary listing provider.
func New(primary search.Provider, opts Options, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:    opts,
		primary: primary,
		log:     zap.S().With("component", "resolver"),
	}
	for _, fn := range options {
		fn(o)
	}
	if o.rate == nil {
		rcOpts := []resilience.RateControllerOption{}
		if opts.RetryDelay > 0 {
			rcOpts = append(rcOpts, resilience.WithBaseDelay(opts.RetryDelay))
		}
		o.rate = resilience.NewRateController(rcOpts...)
	}
	if o.opts.MaxRetries <= 0 {
		o.opts.MaxRetries = 3
	}
	if o.opts.SimilarityThreshold <= 0 {
		o.opts.SimilarityThreshold = 0.6
	}
	return o
}

// Resolve runs the full pipeline for one company. It returns an error
// only for blank input or context cancellation; provider failures are
// absorbed into retries and fallbacks, and exhaustion yields an
// explicit not-found record.
func (o *Orchestrator) Resolve(ctx context.Context, in model.Input) (*model.ContactRecord, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, eris.Wrap(resilience.ErrInvalidInput, "company name is blank")
	}
	in.Name = name

	if rec, ok := o.cacheLookup(ctx, name); ok {
		return rec, nil
	}

	rec := &model.ContactRecord{Name: name}

	listing, err := o.primarySearch(ctx, in)
	if err != nil {
		return nil, err
	}
	o.mergeListing(rec, listing, model.SourceMapListing)

	if !rec.HasActionableData() && o.alternative != nil {
		o.alternativeSearch(ctx, rec, name)
	}

	if o.opts.EnableSimilarSearch && rec.FirstPhone() == "" {
		o.similarNameSearch(ctx, rec, name)
	}

	if o.opts.EnableWebsiteScraping && o.enricher != nil && rec.Website != "" &&
		(rec.FirstPhone() == "" || rec.Email == nil) {
		o.enrichFromWebsite(ctx, rec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !rec.HasActionableData() {
		o.log.Infow("no contact data found", "name", name)
		nf := model.NotFound(name)
		nf.SimilarCandidate = rec.SimilarCandidate
		return nf, nil
	}
	rec.Found = true
	o.cacheStore(ctx, name, rec)
	return rec, nil
}

func (o *Orchestrator) cacheLookup(ctx context.Context, name string) (*model.ContactRecord, bool) {
	if !o.opts.UseCache || o.store == nil {
		return nil, false
	}
	rec, ok, err := o.store.Get(ctx, name)
	if err != nil {
		// Backend trouble is never fatal, a miss costs one search.
		o.log.Warnw("cache lookup failed", "name", name, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	o.log.Debugw("cache hit", "name", name)
	return rec, true
}

func (o *Orchestrator) cacheStore(ctx context.Context, name string, rec *model.ContactRecord) {
	if !o.opts.UseCache || o.store == nil || !cache.Cacheable(rec) {
		return
	}
	if err := o.store.Put(ctx, name, rec); err != nil {
		o.log.Warnw("cache store failed", "name", name, "error", err)
	}
}

// primarySearch retries the listing provider up to MaxRetries times,
// pacing every attempt and rotating identity after two consecutive
// failures. A non-error empty answer is accepted as final: the surface
// responded, it just has nothing.
func (o *Orchestrator) primarySearch(ctx context.Context, in model.Input) (*model.RawListing, error) {
	query := search.BuildQuery(in)

	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		if err := o.rate.Wait(ctx); err != nil {
			return nil, err
		}

		listing, err := o.primary.Search(ctx, query)
		if err == nil {
			o.rate.ReportOutcome(true)
			return listing, nil
		}

		o.rate.ReportOutcome(false)
		o.log.Warnw("listing search attempt failed",
			"query", query, "attempt", attempt, "error", err)
		if o.rate.ShouldRotate() {
			o.rotateIdentity(ctx)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (o *Orchestrator) rotateIdentity(ctx context.Context) {
	o.rate.ResetRotation()
	if !o.opts.UseRotatingIdentities || o.pool == nil {
		return
	}
	id := o.pool.Rotate(ctx)
	o.log.Infow("rotated identity", "user_agent", id.UserAgent, "proxied", id.Proxy != nil)
}

func (o *Orchestrator) alternativeSearch(ctx context.Context, rec *model.ContactRecord, name string) {
	if err := o.rate.Wait(ctx); err != nil {
		return
	}
	listing, err := o.alternative.Search(ctx, name)
	if err != nil {
		o.rate.ReportOutcome(false)
		o.log.Warnw("alternative search failed", "name", name, "error", err)
		return
	}
	o.rate.ReportOutcome(true)
	o.mergeListing(rec, listing, model.SourceAlternativeSearch)
}

// similarNameSearch fans out name variations and merges the first
// candidate with a phone, but only when its name scores at or above the
// similarity threshold. Below-threshold candidates are kept as metadata
// and never merged.
func (o *Orchestrator) similarNameSearch(ctx context.Context, rec *model.ContactRecord, name string) {
	variations := match.Variations(name)
	if len(variations) < 2 {
		return
	}
	if err := o.rate.Wait(ctx); err != nil {
		return
	}

	candidate, err := o.primary.SearchVariations(ctx, variations[1:])
	if err != nil {
		o.rate.ReportOutcome(false)
		o.log.Warnw("similar-name search failed", "name", name, "error", err)
		return
	}
	o.rate.ReportOutcome(true)
	if candidate == nil || candidate.Phone == "" {
		return
	}

	score := match.Similarity(name, candidate.Name)
	if score < o.opts.SimilarityThreshold {
		o.log.Infow("similar candidate below threshold",
			"name", name, "candidate", candidate.Name, "score", score)
		rec.SimilarCandidate = &model.SimilarCandidate{
			Name:  candidate.Name,
			Phone: candidate.Phone,
			Score: score,
		}
		return
	}

	o.mergeListing(rec, candidate, model.SourceSimilarMapListing)
	if candidate.Name != "" {
		rec.Name = candidate.Name
	}
	rec.MatchedFrom = name
	rec.SimilarityScore = score
}

// enrichFromWebsite fills missing phone/email from the company site.
// Failures leave the record untouched; finding anything reclassifies
// the record's source as Website.
func (o *Orchestrator) enrichFromWebsite(ctx context.Context, rec *model.ContactRecord) {
	info, err := o.enricher.ExtractContacts(ctx, rec.Website)
	if err != nil {
		o.log.Warnw("website enrichment failed", "website", rec.Website, "error", err)
		return
	}
	if info == nil || info.Empty() {
		return
	}

	added := false
	for _, pn := range info.Phones {
		if o.addPhone(rec, pn) {
			added = true
		}
	}
	if rec.Email == nil && info.Email != nil {
		rec.Email = info.Email
		added = true
	}
	if added {
		rec.DataSource = model.SourceWebsite
	}
}

// mergeListing folds a raw listing into the record add-only: existing
// fields are never overwritten or removed.
func (o *Orchestrator) mergeListing(rec *model.ContactRecord, l *model.RawListing, src model.DataSource) {
	if l.IsEmpty() {
		return
	}

	if rec.Address == "" {
		rec.Address = strings.TrimSpace(l.Address)
	}
	if l.Phone != "" && normalize.IsPlausiblePhone(l.Phone) {
		pn := normalize.Phone(l.Phone, o.phoneOptions())
		if pn.Normalized != "" {
			pn.Provenance = model.Provenance{Page: model.PageMapListing, URL: l.ListingURL}
			o.addPhone(rec, pn)
		}
	}
	if rec.Email == nil && l.Email != "" && !normalize.IsJunkEmailDomain(l.Email) {
		em := normalize.Email(l.Email)
		em.Provenance = model.Provenance{Page: model.PageMapListing, URL: l.ListingURL}
		rec.Email = &em
	}
	if rec.Website == "" {
		rec.Website = normalize.URL(l.Website)
	}
	if rec.Rating == "" {
		rec.Rating = l.Rating
	}
	if rec.ReviewsCount == "" {
		rec.ReviewsCount = l.ReviewsCount
	}
	if rec.Category == "" {
		rec.Category = l.Category
	}
	if rec.Coordinates == nil && (l.Latitude != 0 || l.Longitude != 0) {
		rec.Coordinates = &model.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
	}
	if rec.SourceURL == "" {
		rec.SourceURL = l.ListingURL
	}
	if rec.DataSource == "" {
		rec.DataSource = src
	}
}

// addPhone appends a phone unless the normalized form is already
// present. Reports whether the list grew.
func (o *Orchestrator) addPhone(rec *model.ContactRecord, pn model.PhoneNumber) bool {
	if pn.Normalized == "" {
		return false
	}
	for _, existing := range rec.Phones {
		if existing.Normalized == pn.Normalized {
			return false
		}
	}
	rec.Phones = append(rec.Phones, pn)
	return true
}

func (o *Orchestrator) phoneOptions() normalize.PhoneOptions {
	return normalize.PhoneOptions{
		PreserveFormat: o.opts.PreservePhoneFormat,
		Region:         o.opts.DefaultRegion,
	}
}

package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/cache"
	"github.com/sells-group/contact-resolver/internal/identity"
	"github.com/sells-group/contact-resolver/internal/normalize"
	"github.com/sells-group/contact-resolver/internal/resolver"
	"github.com/sells-group/contact-resolver/internal/search"
	"github.com/sells-group/contact-resolver/internal/website"
)

// initCache opens the configured cache backend and runs its migration.
func initCache(ctx context.Context) (cache.Cache, error) {
	ttl := cache.TTLFromDays(cfg.Resolver.CacheDays)

	var (
		store cache.Cache
		err   error
	)
	switch cfg.Cache.Driver {
	case "postgres":
		store, err = cache.NewPostgres(ctx, cfg.Cache.DatabaseURL, ttl, &cache.PoolConfig{
			MaxConns: cfg.Cache.Pool.MaxConns,
			MinConns: cfg.Cache.Pool.MinConns,
		})
	default:
		store, err = cache.NewSQLite(cfg.Cache.Path, ttl)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "migrate cache")
	}
	return store, nil
}

// buildOrchestrator wires the resolution pipeline from config.
func buildOrchestrator(store cache.Cache) (*resolver.Orchestrator, error) {
	poolOpts := []identity.PoolOption{}
	if cfg.Identity.UseProxies {
		dir := identity.NewProxyDirectory(nil)
		if cfg.Identity.ProxyListURL != "" {
			dir.SetListURL(cfg.Identity.ProxyListURL)
		}
		poolOpts = append(poolOpts, identity.WithDirectory(dir))
	}
	pool := identity.NewPool(poolOpts...)

	fetcher := search.NewHTTPFetcher(pool)
	fetcher.SetTimeout(time.Duration(cfg.Search.TimeoutSecs) * time.Second)

	listing := search.NewListingSearcher(fetcher)
	if cfg.Search.MapsBaseURL != "" {
		listing.SetBaseURL(cfg.Search.MapsBaseURL)
	}
	alternative := search.NewAlternativeSearcher(fetcher, listing)
	if cfg.Search.SearchBaseURL != "" {
		alternative.SetBaseURL(cfg.Search.SearchBaseURL)
	}

	known := website.NewKnownContacts()
	if cfg.Website.KnownContactsPath != "" {
		loaded, err := website.LoadKnownContacts(cfg.Website.KnownContactsPath)
		if err != nil {
			return nil, eris.Wrap(err, "load known contacts")
		}
		known = loaded
	}
	scraper := website.NewScraper(fetcher, known,
		website.WithMaxPages(cfg.Website.MaxPages),
		website.WithPhoneOptions(normalize.PhoneOptions{
			PreserveFormat: cfg.Resolver.PreservePhoneFormat,
			Region:         cfg.Resolver.DefaultRegion,
		}),
	)

	opts := resolver.Options{
		MaxRetries:            cfg.Resolver.MaxRetries,
		RetryDelay:            time.Duration(cfg.Resolver.RetryDelaySecs) * time.Second,
		EnableSimilarSearch:   cfg.Resolver.EnableSimilarSearch,
		SimilarityThreshold:   cfg.Resolver.SimilarityThreshold,
		EnableWebsiteScraping: cfg.Resolver.EnableWebsiteScraping,
		PreservePhoneFormat:   cfg.Resolver.PreservePhoneFormat,
		DefaultRegion:         cfg.Resolver.DefaultRegion,
		UseCache:              cfg.Resolver.UseCache,
		CacheDays:             cfg.Resolver.CacheDays,
		UseRotatingIdentities: cfg.Identity.UseRotatingIdentities,
	}

	zap.S().Debugw("orchestrator wired",
		"cache_driver", cfg.Cache.Driver,
		"use_proxies", cfg.Identity.UseProxies,
		"similar_search", opts.EnableSimilarSearch,
		"website_scraping", opts.EnableWebsiteScraping,
	)

	return resolver.New(listing, opts,
		resolver.WithAlternative(alternative),
		resolver.WithEnricher(scraper),
		resolver.WithCache(store),
		resolver.WithIdentityPool(pool),
	), nil
}

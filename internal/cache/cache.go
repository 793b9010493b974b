package cache

import (
	"context"
	"time"

	"github.com/sells-group/contact-resolver/internal/model"
)

// Cache is the persistence interface for resolved contact records.
type Cache interface {
	// Get returns the unexpired record cached for the company name, or
	// (nil, false, nil) on a miss.
	Get(ctx context.Context, name string) (*model.ContactRecord, bool, error)

	// Put stores a record under the company name. Records without
	// actionable data are skipped: a transient failure to find a
	// listing must not suppress future attempts.
	Put(ctx context.Context, name string, rec *model.ContactRecord) error

	// Clear removes every entry and reports how many were removed.
	Clear(ctx context.Context) (int, error)

	// Sweep removes expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Cacheable reports whether a record is worth persisting. Not-found
// results and records with neither address nor phone are rejected so a
// bad scrape day does not poison a month of lookups.
func Cacheable(rec *model.ContactRecord) bool {
	return rec != nil && rec.Found && rec.HasActionableData()
}

// TTLFromDays converts the configured cache lifetime to a duration.
func TTLFromDays(days int) time.Duration {
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-resolver/internal/model"
)

func newTestSQLiteCache(t *testing.T, ttl time.Duration) *SQLiteCache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLite(dbPath, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func actionableRecord(name string) *model.ContactRecord {
	return &model.ContactRecord{
		Name:    name,
		Address: "Jl. Sudirman No. 1, Jakarta",
		Phones: []model.PhoneNumber{
			{Raw: "021-39705055", Normalized: "+62 21 39705055", Kind: model.PhoneLandline},
		},
		DataSource: model.SourceMapListing,
		Found:      true,
	}
}

func TestSQLite_PutAndGet(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	rec := actionableRecord("PT Telkom Indonesia")
	require.NoError(t, c.Put(ctx, "PT Telkom Indonesia", rec))

	got, hit, err := c.Get(ctx, "PT Telkom Indonesia")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Address, got.Address)
	assert.True(t, got.FromCache)
	require.Len(t, got.Phones, 1)
	assert.Equal(t, "+62 21 39705055", got.Phones[0].Normalized)
}

func TestSQLite_GetMiss(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)

	got, hit, err := c.Get(context.Background(), "Unknown Company")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestSQLite_KeyNormalization(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "PT Telkom Indonesia", actionableRecord("PT Telkom Indonesia")))

	// Same name in different case and spacing hits the same entry.
	_, hit, err := c.Get(ctx, "  pt   telkom   INDONESIA ")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestSQLite_ExpiredEntryNotReturned(t *testing.T) {
	c := newTestSQLiteCache(t, -time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Stale Co", actionableRecord("Stale Co")))

	_, hit, err := c.Get(ctx, "Stale Co")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSQLite_NotFoundNeverCached(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Ghost Co", model.NotFound("Ghost Co")))

	_, hit, err := c.Get(ctx, "Ghost Co")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSQLite_NonActionableNeverCached(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	rec := &model.ContactRecord{Name: "Empty Co", Found: true}
	require.NoError(t, c.Put(ctx, "Empty Co", rec))

	_, hit, err := c.Get(ctx, "Empty Co")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSQLite_PutOverwrites(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	first := actionableRecord("Telkom")
	require.NoError(t, c.Put(ctx, "Telkom", first))

	second := actionableRecord("Telkom")
	second.Website = "https://telkom.co.id"
	require.NoError(t, c.Put(ctx, "Telkom", second))

	got, hit, err := c.Get(ctx, "Telkom")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "https://telkom.co.id", got.Website)
}

func TestSQLite_PutBatch(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	recs := []*model.ContactRecord{
		actionableRecord("PT Telkom Indonesia"),
		model.NotFound("Ghost Co"),
		actionableRecord("PT Maju Jaya"),
	}

	n, err := c.PutBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, hit, err := c.Get(ctx, "PT Maju Jaya")
	require.NoError(t, err)
	assert.True(t, hit)

	_, hit, err = c.Get(ctx, "Ghost Co")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSQLite_ClearAndSweep(t *testing.T) {
	c := newTestSQLiteCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "A", actionableRecord("A")))
	require.NoError(t, c.Put(ctx, "B", actionableRecord("B")))

	// Nothing has expired yet.
	swept, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	cleared, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	_, hit, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestKeyStableAndFolded(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("PT Telkom"), Key("pt telkom"))
	assert.Equal(t, Key("Café  Batavia"), Key("cafe batavia"))
	assert.NotEqual(t, Key("Telkom"), Key("Indosat"))
	assert.Len(t, Key("anything"), 64)
}

func TestCacheable(t *testing.T) {
	t.Parallel()

	assert.True(t, Cacheable(actionableRecord("X")))
	assert.False(t, Cacheable(nil))
	assert.False(t, Cacheable(model.NotFound("X")))
	assert.False(t, Cacheable(&model.ContactRecord{Name: "X", Found: true}))
}

func TestTTLFromDays(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30*24*time.Hour, TTLFromDays(0))
	assert.Equal(t, 7*24*time.Hour, TTLFromDays(7))
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/db"
	"github.com/sells-group/contact-resolver/internal/model"
)

// PostgresCache implements Cache using pgxpool, for deployments that
// share one cache across workers.
type PostgresCache struct {
	pool    db.Pool
	ttl     time.Duration
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresCache with a connection pool.
func NewPostgres(ctx context.Context, connString string, ttl time.Duration, poolCfg *PoolConfig) (*PostgresCache, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresCache{pool: pool, ttl: ttl, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests.
func NewPostgresWithPool(pool db.Pool, ttl time.Duration) *PostgresCache {
	return &PostgresCache{pool: pool, ttl: ttl, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contact_cache (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	record     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contact_cache_expires_at ON contact_cache(expires_at);
`

func (c *PostgresCache) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (c *PostgresCache) Close() error {
	if c.closeFn != nil {
		c.closeFn()
	}
	return nil
}

func (c *PostgresCache) Get(ctx context.Context, name string) (*model.ContactRecord, bool, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT record FROM contact_cache WHERE key = $1 AND expires_at > now()`,
		Key(name),
	)

	var recordJSON []byte
	err := row.Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached record")
	}

	var rec model.ContactRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal cached record")
	}
	rec.FromCache = true
	return &rec, true, nil
}

func (c *PostgresCache) Put(ctx context.Context, name string, rec *model.ContactRecord) error {
	if !Cacheable(rec) {
		zap.S().Debugw("skipping cache write for non-actionable record", "name", name)
		return nil
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	now := time.Now().UTC()
	_, err = c.pool.Exec(ctx,
		`INSERT INTO contact_cache (key, name, record, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET record = EXCLUDED.record, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		Key(name), name, recordJSON, now, now.Add(c.ttl),
	)
	return eris.Wrap(err, "postgres: put cached record")
}

// PutBatch loads many records in one round trip via COPY plus an
// upsert, used when restoring a cache from a batch snapshot. Records
// that fail the cacheability guard are skipped.
func (c *PostgresCache) PutBatch(ctx context.Context, recs []*model.ContactRecord) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		if !Cacheable(rec) {
			continue
		}
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal record")
		}
		rows = append(rows, []any{Key(rec.Name), rec.Name, recordJSON, now, now.Add(c.ttl)})
	}

	n, err := db.BulkUpsert(ctx, c.pool, db.UpsertConfig{
		Table:        "contact_cache",
		Columns:      []string{"key", "name", "record", "cached_at", "expires_at"},
		ConflictKeys: []string{"key"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk put")
}

func (c *PostgresCache) Clear(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM contact_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear cache")
	}
	return int(tag.RowsAffected()), nil
}

func (c *PostgresCache) Sweep(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM contact_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep cache")
	}
	return int(tag.RowsAffected()), nil
}

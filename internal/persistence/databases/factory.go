package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoryengine/internal/config"
)

// NewManager constructs the database backends the memory engine depends on:
// full-text search, vector similarity, a small property graph, and the
// MemoryStore (themes/semantics/episodes/user_profile). Postgres+pgvector is
// the primary backend; leaving cfg.Postgres.ConnectionString empty selects
// the in-memory backends used for tests and zero-dependency embedding.
func NewManager(ctx context.Context, cfg config.Config) (Manager, error) {
	var m Manager

	dsn := cfg.Postgres.ConnectionString
	if dsn == "" {
		m.Search = NewMemorySearch()
		m.Vector = NewMemoryVector()
		m.Graph = NewMemoryGraph()
		m.Memory = NewInMemoryMemoryStore()
		return m, nil
	}

	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return Manager{}, fmt.Errorf("connect postgres: %w", err)
	}
	m.Search = NewPostgresSearch(pool)
	dim := cfg.Embedding.Dimension
	if dim <= 0 {
		dim = 1024
	}
	if cfg.Qdrant.Host != "" {
		v, err := NewQdrantVector(cfg.Qdrant.Host, cfg.Qdrant.Collection, dim, "cosine")
		if err != nil {
			return Manager{}, fmt.Errorf("connect qdrant: %w", err)
		}
		m.Vector = v
	} else {
		m.Vector = NewPostgresVector(pool, dim, "cosine")
	}
	m.Graph = NewPostgresGraph(pool)
	store := NewPostgresMemoryStore(pool)
	if err := store.Init(ctx); err != nil {
		return Manager{}, fmt.Errorf("init memory store schema: %w", err)
	}
	m.Memory = store
	return m, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pgCfg.MaxConns = 8
	pgCfg.MinConns = 0
	pgCfg.MaxConnLifetime = time.Hour
	pgCfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// OpenPool creates a Postgres connection pool using the standard defaults.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return newPgPool(ctx, dsn)
}

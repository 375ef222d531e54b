package databases

// This file documents the Postgres-backed database implementations and their
// expected extensions and schemas. It exists to keep SQL bootstrap centralized
// and easy to find. Production deployments should manage migrations with an
// external tool; our code performs best-effort CREATE IF NOT EXISTS for dev.

/*
Extensions
- vector: for pgvector (embeddings)
- pg_trgm: optional FTS helpers (not required for tsquery)

Tables
- documents(id TEXT PRIMARY KEY, text TEXT NOT NULL, metadata JSONB, ts tsvector GENERATED ... STORED)
  GIN index on ts. Used by WorkspaceGrep to index arbitrary workspace text
  (see AsWorkspaceGrep); ids are not required to carry a "chunk:" prefix.
- chunks(id TEXT PK, doc_id TEXT, idx INT, text TEXT, metadata JSONB, lang regconfig)
  Optional table for callers that do chunk documents; SearchChunks prefers
  it when present and falls back to documents otherwise.
- embeddings(id TEXT PRIMARY KEY, vec vector[(dim)], metadata JSONB)
  Consider ivfflat index per metric
- nodes(id TEXT PRIMARY KEY, labels TEXT[], props JSONB)
- edges(id BIGSERIAL PK, source TEXT, rel TEXT, target TEXT, props JSONB)
  Indexes on (source, rel) and (target, rel). Holds the memory engine's
  semantic-fact provenance graph (DERIVED_FROM episode, BELONGS_TO_THEME
  theme) — see RecordProvenance in interfaces.go.
*/

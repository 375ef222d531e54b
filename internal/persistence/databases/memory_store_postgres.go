package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresMemoryStore backs the four memory tables with Postgres + pgvector,
// following the same CREATE-IF-NOT-EXISTS bootstrap and ON CONFLICT upsert
// idiom as postgres_vector.go and postgres_graph.go.
type postgresMemoryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMemoryStore returns a Postgres-backed MemoryStore. Callers must
// call Init before first use.
func NewPostgresMemoryStore(pool *pgxpool.Pool) MemoryStore {
	return &postgresMemoryStore{pool: pool}
}

func (s *postgresMemoryStore) Init(ctx context.Context) error {
	_, _ = s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS themes (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  summary TEXT NOT NULL DEFAULT '',
  embedding vector,
  semantic_ids TEXT NOT NULL DEFAULT '[]',
  neighbor_ids TEXT NOT NULL DEFAULT '[]',
  message_count INT NOT NULL DEFAULT 0,
  last_active_ms BIGINT NOT NULL DEFAULT 0,
  created_at_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS semantics (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  embedding vector,
  theme_id TEXT NOT NULL,
  source_episode_ids TEXT NOT NULL DEFAULT '[]',
  neighbor_ids TEXT NOT NULL DEFAULT '[]',
  created_at_ms BIGINT NOT NULL DEFAULT 0,
  updated_at_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS semantics_theme_idx ON semantics(theme_id);

CREATE TABLE IF NOT EXISTS episodes (
  id TEXT PRIMARY KEY,
  summary TEXT NOT NULL,
  embedding vector,
  session_id TEXT NOT NULL DEFAULT '',
  turn_start INT NOT NULL DEFAULT 0,
  turn_end INT NOT NULL DEFAULT 0,
  message_count INT NOT NULL DEFAULT 0,
  raw_messages TEXT NOT NULL DEFAULT '',
  created_at_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_profile (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  phase TEXT NOT NULL,
  behavioral TEXT NOT NULL DEFAULT '',
  cognitive TEXT NOT NULL DEFAULT '',
  merged_global TEXT NOT NULL DEFAULT '',
  embedding vector,
  updated_at_ms BIGINT NOT NULL DEFAULT 0,
  UNIQUE(user_id, phase)
);
CREATE INDEX IF NOT EXISTS user_profile_user_idx ON user_profile(user_id);
`)
	return err
}

func (s *postgresMemoryStore) Close() { s.pool.Close() }

func (s *postgresMemoryStore) UpsertTheme(ctx context.Context, t ThemeRow) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO themes (id, name, summary, embedding, semantic_ids, neighbor_ids, message_count, last_active_ms, created_at_ms)
VALUES ($1,$2,$3,$4::vector,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, summary=EXCLUDED.summary, embedding=EXCLUDED.embedding,
  semantic_ids=EXCLUDED.semantic_ids, neighbor_ids=EXCLUDED.neighbor_ids,
  message_count=EXCLUDED.message_count, last_active_ms=EXCLUDED.last_active_ms
`, t.ID, t.Name, t.Summary, toVectorLiteral(t.Embedding), t.SemanticIDs, t.NeighborIDs, t.MessageCount, t.LastActiveMs, t.CreatedAtMs)
	return err
}

func (s *postgresMemoryStore) GetTheme(ctx context.Context, id string) (ThemeRow, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, summary, embedding::text, semantic_ids, neighbor_ids, message_count, last_active_ms, created_at_ms FROM themes WHERE id=$1`, id)
	var t ThemeRow
	var emb string
	if err := row.Scan(&t.ID, &t.Name, &t.Summary, &emb, &t.SemanticIDs, &t.NeighborIDs, &t.MessageCount, &t.LastActiveMs, &t.CreatedAtMs); err != nil {
		if err == pgx.ErrNoRows {
			return ThemeRow{}, false, nil
		}
		return ThemeRow{}, false, err
	}
	t.Embedding = fromVectorLiteral(emb)
	return t, true, nil
}

func (s *postgresMemoryStore) DeleteTheme(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM themes WHERE id=$1`, id)
	return err
}

func (s *postgresMemoryStore) ListThemes(ctx context.Context) ([]ThemeRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, summary, embedding::text, semantic_ids, neighbor_ids, message_count, last_active_ms, created_at_ms FROM themes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThemeRow
	for rows.Next() {
		var t ThemeRow
		var emb string
		if err := rows.Scan(&t.ID, &t.Name, &t.Summary, &emb, &t.SemanticIDs, &t.NeighborIDs, &t.MessageCount, &t.LastActiveMs, &t.CreatedAtMs); err != nil {
			return nil, err
		}
		t.Embedding = fromVectorLiteral(emb)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) SearchThemes(ctx context.Context, vector []float32, k int) ([]ThemeRow, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, name, summary, embedding::text, semantic_ids, neighbor_ids, message_count, last_active_ms, created_at_ms
FROM themes ORDER BY embedding <=> $1::vector LIMIT $2`, toVectorLiteral(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThemeRow
	for rows.Next() {
		var t ThemeRow
		var emb string
		if err := rows.Scan(&t.ID, &t.Name, &t.Summary, &emb, &t.SemanticIDs, &t.NeighborIDs, &t.MessageCount, &t.LastActiveMs, &t.CreatedAtMs); err != nil {
			return nil, err
		}
		t.Embedding = fromVectorLiteral(emb)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) ScanThemes(ctx context.Context, offset, pageSize int) (ScanPage[ThemeRow], error) {
	if pageSize <= 0 {
		pageSize = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, summary, embedding::text, semantic_ids, neighbor_ids, message_count, last_active_ms, created_at_ms FROM themes ORDER BY id LIMIT $1 OFFSET $2`, pageSize+1, offset)
	if err != nil {
		return ScanPage[ThemeRow]{}, err
	}
	defer rows.Close()
	var out []ThemeRow
	for rows.Next() {
		var t ThemeRow
		var emb string
		if err := rows.Scan(&t.ID, &t.Name, &t.Summary, &emb, &t.SemanticIDs, &t.NeighborIDs, &t.MessageCount, &t.LastActiveMs, &t.CreatedAtMs); err != nil {
			return ScanPage[ThemeRow]{}, err
		}
		t.Embedding = fromVectorLiteral(emb)
		out = append(out, t)
	}
	return finishScanPage(out, offset, pageSize), rows.Err()
}

func (s *postgresMemoryStore) UpsertSemantic(ctx context.Context, sem SemanticRow) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO semantics (id, content, embedding, theme_id, source_episode_ids, neighbor_ids, created_at_ms, updated_at_ms)
VALUES ($1,$2,$3::vector,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  content=EXCLUDED.content, embedding=EXCLUDED.embedding, theme_id=EXCLUDED.theme_id,
  source_episode_ids=EXCLUDED.source_episode_ids, neighbor_ids=EXCLUDED.neighbor_ids,
  updated_at_ms=EXCLUDED.updated_at_ms
`, sem.ID, sem.Content, toVectorLiteral(sem.Embedding), sem.ThemeID, sem.SourceEpisodeIDs, sem.NeighborIDs, sem.CreatedAtMs, sem.UpdatedAtMs)
	return err
}

func (s *postgresMemoryStore) GetSemantic(ctx context.Context, id string) (SemanticRow, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, content, embedding::text, theme_id, source_episode_ids, neighbor_ids, created_at_ms, updated_at_ms FROM semantics WHERE id=$1`, id)
	var r SemanticRow
	var emb string
	if err := row.Scan(&r.ID, &r.Content, &emb, &r.ThemeID, &r.SourceEpisodeIDs, &r.NeighborIDs, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
		if err == pgx.ErrNoRows {
			return SemanticRow{}, false, nil
		}
		return SemanticRow{}, false, err
	}
	r.Embedding = fromVectorLiteral(emb)
	return r, true, nil
}

func (s *postgresMemoryStore) DeleteSemantic(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM semantics WHERE id=$1`, id)
	return err
}

func (s *postgresMemoryStore) ListSemanticsByTheme(ctx context.Context, themeID string) ([]SemanticRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, content, embedding::text, theme_id, source_episode_ids, neighbor_ids, created_at_ms, updated_at_ms FROM semantics WHERE theme_id=$1 ORDER BY id`, themeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SemanticRow
	for rows.Next() {
		var r SemanticRow
		var emb string
		if err := rows.Scan(&r.ID, &r.Content, &emb, &r.ThemeID, &r.SourceEpisodeIDs, &r.NeighborIDs, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
			return nil, err
		}
		r.Embedding = fromVectorLiteral(emb)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) SearchSemantics(ctx context.Context, vector []float32, k int) ([]SemanticRow, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, content, embedding::text, theme_id, source_episode_ids, neighbor_ids, created_at_ms, updated_at_ms
FROM semantics ORDER BY embedding <=> $1::vector LIMIT $2`, toVectorLiteral(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SemanticRow
	for rows.Next() {
		var r SemanticRow
		var emb string
		if err := rows.Scan(&r.ID, &r.Content, &emb, &r.ThemeID, &r.SourceEpisodeIDs, &r.NeighborIDs, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
			return nil, err
		}
		r.Embedding = fromVectorLiteral(emb)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) ScanSemantics(ctx context.Context, offset, pageSize int) (ScanPage[SemanticRow], error) {
	if pageSize <= 0 {
		pageSize = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT id, content, embedding::text, theme_id, source_episode_ids, neighbor_ids, created_at_ms, updated_at_ms FROM semantics ORDER BY id LIMIT $1 OFFSET $2`, pageSize+1, offset)
	if err != nil {
		return ScanPage[SemanticRow]{}, err
	}
	defer rows.Close()
	var out []SemanticRow
	for rows.Next() {
		var r SemanticRow
		var emb string
		if err := rows.Scan(&r.ID, &r.Content, &emb, &r.ThemeID, &r.SourceEpisodeIDs, &r.NeighborIDs, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
			return ScanPage[SemanticRow]{}, err
		}
		r.Embedding = fromVectorLiteral(emb)
		out = append(out, r)
	}
	return finishScanPage(out, offset, pageSize), rows.Err()
}

func (s *postgresMemoryStore) UpsertEpisode(ctx context.Context, e EpisodeRow) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO episodes (id, summary, embedding, session_id, turn_start, turn_end, message_count, raw_messages, created_at_ms)
VALUES ($1,$2,$3::vector,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  summary=EXCLUDED.summary, embedding=EXCLUDED.embedding, session_id=EXCLUDED.session_id,
  turn_start=EXCLUDED.turn_start, turn_end=EXCLUDED.turn_end, message_count=EXCLUDED.message_count,
  raw_messages=EXCLUDED.raw_messages
`, e.ID, e.Summary, toVectorLiteral(e.Embedding), e.SessionID, e.TurnStart, e.TurnEnd, e.MessageCount, e.RawMessages, e.CreatedAtMs)
	return err
}

func (s *postgresMemoryStore) GetEpisode(ctx context.Context, id string) (EpisodeRow, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, summary, embedding::text, session_id, turn_start, turn_end, message_count, raw_messages, created_at_ms FROM episodes WHERE id=$1`, id)
	var e EpisodeRow
	var emb string
	if err := row.Scan(&e.ID, &e.Summary, &emb, &e.SessionID, &e.TurnStart, &e.TurnEnd, &e.MessageCount, &e.RawMessages, &e.CreatedAtMs); err != nil {
		if err == pgx.ErrNoRows {
			return EpisodeRow{}, false, nil
		}
		return EpisodeRow{}, false, err
	}
	e.Embedding = fromVectorLiteral(emb)
	return e, true, nil
}

func (s *postgresMemoryStore) GetEpisodes(ctx context.Context, ids []string) ([]EpisodeRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, summary, embedding::text, session_id, turn_start, turn_end, message_count, raw_messages, created_at_ms FROM episodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EpisodeRow
	for rows.Next() {
		var e EpisodeRow
		var emb string
		if err := rows.Scan(&e.ID, &e.Summary, &emb, &e.SessionID, &e.TurnStart, &e.TurnEnd, &e.MessageCount, &e.RawMessages, &e.CreatedAtMs); err != nil {
			return nil, err
		}
		e.Embedding = fromVectorLiteral(emb)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) DeleteEpisode(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM episodes WHERE id=$1`, id)
	return err
}

func (s *postgresMemoryStore) BlankRawMessages(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE episodes SET raw_messages='' WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *postgresMemoryStore) ScanEpisodes(ctx context.Context, offset, pageSize int) (ScanPage[EpisodeRow], error) {
	if pageSize <= 0 {
		pageSize = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT id, summary, embedding::text, session_id, turn_start, turn_end, message_count, raw_messages, created_at_ms FROM episodes ORDER BY id LIMIT $1 OFFSET $2`, pageSize+1, offset)
	if err != nil {
		return ScanPage[EpisodeRow]{}, err
	}
	defer rows.Close()
	var out []EpisodeRow
	for rows.Next() {
		var e EpisodeRow
		var emb string
		if err := rows.Scan(&e.ID, &e.Summary, &emb, &e.SessionID, &e.TurnStart, &e.TurnEnd, &e.MessageCount, &e.RawMessages, &e.CreatedAtMs); err != nil {
			return ScanPage[EpisodeRow]{}, err
		}
		e.Embedding = fromVectorLiteral(emb)
		out = append(out, e)
	}
	return finishScanPage(out, offset, pageSize), rows.Err()
}

func (s *postgresMemoryStore) UpsertUserProfile(ctx context.Context, p UserProfileRow) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_profile (id, user_id, phase, behavioral, cognitive, merged_global, embedding, updated_at_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,$8)
ON CONFLICT (user_id, phase) DO UPDATE SET
  behavioral=EXCLUDED.behavioral, cognitive=EXCLUDED.cognitive, merged_global=EXCLUDED.merged_global,
  embedding=EXCLUDED.embedding, updated_at_ms=EXCLUDED.updated_at_ms
`, p.ID, p.UserID, p.Phase, p.Behavioral, p.Cognitive, p.MergedGlobal, toVectorLiteral(p.Embedding), p.UpdatedAtMs)
	return err
}

func (s *postgresMemoryStore) GetLatestUserProfile(ctx context.Context, userID string) (UserProfileRow, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, phase, behavioral, cognitive, merged_global, embedding::text, updated_at_ms
FROM user_profile WHERE user_id=$1 ORDER BY updated_at_ms DESC LIMIT 1`, userID)
	var p UserProfileRow
	var emb string
	if err := row.Scan(&p.ID, &p.UserID, &p.Phase, &p.Behavioral, &p.Cognitive, &p.MergedGlobal, &emb, &p.UpdatedAtMs); err != nil {
		if err == pgx.ErrNoRows {
			return UserProfileRow{}, false, nil
		}
		return UserProfileRow{}, false, err
	}
	p.Embedding = fromVectorLiteral(emb)
	return p, true, nil
}

func (s *postgresMemoryStore) ListUserProfiles(ctx context.Context, userID string) ([]UserProfileRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, phase, behavioral, cognitive, merged_global, embedding::text, updated_at_ms FROM user_profile WHERE user_id=$1 ORDER BY phase`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserProfileRow
	for rows.Next() {
		var p UserProfileRow
		var emb string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Phase, &p.Behavioral, &p.Cognitive, &p.MergedGlobal, &emb, &p.UpdatedAtMs); err != nil {
			return nil, err
		}
		p.Embedding = fromVectorLiteral(emb)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresMemoryStore) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "themes", "semantics", "episodes", "user_profile":
	default:
		return 0, fmt.Errorf("memory store: unknown table %q", table)
	}
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n)
	return n, err
}

func finishScanPage[T any](rows []T, offset, pageSize int) ScanPage[T] {
	if len(rows) > pageSize {
		return ScanPage[T]{Rows: rows[:pageSize], NextOffset: offset + pageSize, Done: false}
	}
	return ScanPage[T]{Rows: rows, Done: true}
}

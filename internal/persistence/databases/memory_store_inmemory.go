package databases

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// inMemoryMemoryStore is the zero-dependency MemoryStore backend, used for
// tests and for engines running without a configured Postgres DSN. It follows
// the same mutex-guarded-map-plus-cosine-scan shape as memoryVector above,
// generalized to the four memory tables.
type inMemoryMemoryStore struct {
	mu        sync.RWMutex
	themes    map[string]ThemeRow
	semantics map[string]SemanticRow
	episodes  map[string]EpisodeRow
	// profiles maps userID -> phase -> row, since spec keeps "one latest per
	// (user, phase)" with older phases merged into a running global record.
	profiles map[string]map[string]UserProfileRow
}

// NewInMemoryMemoryStore constructs a process-local MemoryStore.
func NewInMemoryMemoryStore() MemoryStore {
	return &inMemoryMemoryStore{
		themes:    make(map[string]ThemeRow),
		semantics: make(map[string]SemanticRow),
		episodes:  make(map[string]EpisodeRow),
		profiles:  make(map[string]map[string]UserProfileRow),
	}
}

func (s *inMemoryMemoryStore) Init(ctx context.Context) error { return nil }

func (s *inMemoryMemoryStore) UpsertTheme(ctx context.Context, t ThemeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes[t.ID] = t
	return nil
}

func (s *inMemoryMemoryStore) GetTheme(ctx context.Context, id string) (ThemeRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.themes[id]
	return t, ok, nil
}

func (s *inMemoryMemoryStore) DeleteTheme(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.themes, id)
	return nil
}

func (s *inMemoryMemoryStore) ListThemes(ctx context.Context) ([]ThemeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThemeRow, 0, len(s.themes))
	for _, t := range s.themes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *inMemoryMemoryStore) SearchThemes(ctx context.Context, vector []float32, k int) ([]ThemeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	qnorm := norm(vector)
	type scored struct {
		row   ThemeRow
		score float64
	}
	scores := make([]scored, 0, len(s.themes))
	for _, t := range s.themes {
		scores = append(scores, scored{row: t, score: cosine(vector, t.Embedding, qnorm)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].row.ID < scores[j].row.ID
	})
	if len(scores) > k {
		scores = scores[:k]
	}
	out := make([]ThemeRow, len(scores))
	for i, sc := range scores {
		out[i] = sc.row
	}
	return out, nil
}

func (s *inMemoryMemoryStore) ScanThemes(ctx context.Context, offset, pageSize int) (ScanPage[ThemeRow], error) {
	all, _ := s.ListThemes(ctx)
	return paginate(all, offset, pageSize), nil
}

func (s *inMemoryMemoryStore) UpsertSemantic(ctx context.Context, sem SemanticRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.semantics[sem.ID] = sem
	return nil
}

func (s *inMemoryMemoryStore) GetSemantic(ctx context.Context, id string) (SemanticRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.semantics[id]
	return r, ok, nil
}

func (s *inMemoryMemoryStore) DeleteSemantic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.semantics, id)
	return nil
}

func (s *inMemoryMemoryStore) ListSemanticsByTheme(ctx context.Context, themeID string) ([]SemanticRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SemanticRow, 0)
	for _, r := range s.semantics {
		if r.ThemeID == themeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *inMemoryMemoryStore) SearchSemantics(ctx context.Context, vector []float32, k int) ([]SemanticRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qnorm := norm(vector)
	type scored struct {
		row   SemanticRow
		score float64
	}
	scores := make([]scored, 0, len(s.semantics))
	for _, r := range s.semantics {
		scores = append(scores, scored{row: r, score: cosine(vector, r.Embedding, qnorm)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].row.ID < scores[j].row.ID
	})
	if len(scores) > k {
		scores = scores[:k]
	}
	out := make([]SemanticRow, len(scores))
	for i, sc := range scores {
		out[i] = sc.row
	}
	return out, nil
}

func (s *inMemoryMemoryStore) ScanSemantics(ctx context.Context, offset, pageSize int) (ScanPage[SemanticRow], error) {
	s.mu.RLock()
	all := make([]SemanticRow, 0, len(s.semantics))
	for _, r := range s.semantics {
		all = append(all, r)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, offset, pageSize), nil
}

func (s *inMemoryMemoryStore) UpsertEpisode(ctx context.Context, e EpisodeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[e.ID] = e
	return nil
}

func (s *inMemoryMemoryStore) GetEpisode(ctx context.Context, id string) (EpisodeRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.episodes[id]
	return r, ok, nil
}

func (s *inMemoryMemoryStore) GetEpisodes(ctx context.Context, ids []string) ([]EpisodeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EpisodeRow, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.episodes[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *inMemoryMemoryStore) DeleteEpisode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.episodes, id)
	return nil
}

func (s *inMemoryMemoryStore) BlankRawMessages(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.episodes[id]
	if !ok {
		return fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	r.RawMessages = ""
	s.episodes[id] = r
	return nil
}

func (s *inMemoryMemoryStore) ScanEpisodes(ctx context.Context, offset, pageSize int) (ScanPage[EpisodeRow], error) {
	s.mu.RLock()
	all := make([]EpisodeRow, 0, len(s.episodes))
	for _, r := range s.episodes {
		all = append(all, r)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, offset, pageSize), nil
}

func (s *inMemoryMemoryStore) UpsertUserProfile(ctx context.Context, p UserProfileRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles[p.UserID] == nil {
		s.profiles[p.UserID] = make(map[string]UserProfileRow)
	}
	s.profiles[p.UserID][p.Phase] = p
	return nil
}

func (s *inMemoryMemoryStore) GetLatestUserProfile(ctx context.Context, userID string) (UserProfileRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	phases := s.profiles[userID]
	var latest UserProfileRow
	found := false
	for _, p := range phases {
		if !found || p.UpdatedAtMs > latest.UpdatedAtMs {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

func (s *inMemoryMemoryStore) ListUserProfiles(ctx context.Context, userID string) ([]UserProfileRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserProfileRow, 0, len(s.profiles[userID]))
	for _, p := range s.profiles[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out, nil
}

func (s *inMemoryMemoryStore) CountRows(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch table {
	case "themes":
		return len(s.themes), nil
	case "semantics":
		return len(s.semantics), nil
	case "episodes":
		return len(s.episodes), nil
	case "user_profile":
		n := 0
		for _, ph := range s.profiles {
			n += len(ph)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("memory store: unknown table %q", table)
	}
}

func paginate[T any](all []T, offset, pageSize int) ScanPage[T] {
	if pageSize <= 0 {
		pageSize = 200
	}
	if offset < 0 || offset >= len(all) {
		return ScanPage[T]{Done: true}
	}
	end := offset + pageSize
	if end >= len(all) {
		return ScanPage[T]{Rows: all[offset:], Done: true}
	}
	return ScanPage[T]{Rows: all[offset:end], NextOffset: end, Done: false}
}

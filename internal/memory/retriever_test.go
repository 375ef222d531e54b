package memory

import (
	"context"
	"testing"
)

type fakeRetrieverStore struct {
	themes      []Theme
	semantics   map[string][]Semantic // themeID -> facts
	episodes    map[string]Episode
}

func (s *fakeRetrieverStore) TopThemesBySimilarity(ctx context.Context, q []float32, limit int) ([]Theme, error) {
	if limit < len(s.themes) {
		return s.themes[:limit], nil
	}
	return s.themes, nil
}

func (s *fakeRetrieverStore) SemanticsForThemes(ctx context.Context, themeIDs []string) ([]Semantic, error) {
	var out []Semantic
	for _, id := range themeIDs {
		out = append(out, s.semantics[id]...)
	}
	return out, nil
}

func (s *fakeRetrieverStore) EpisodesByIDs(ctx context.Context, ids []string) ([]Episode, error) {
	var out []Episode
	for _, id := range ids {
		if ep, ok := s.episodes[id]; ok {
			out = append(out, ep)
		}
	}
	return out, nil
}

func TestTopDownRetriever_NoThemesReturnsNO(t *testing.T) {
	r := NewTopDownRetriever(&fakeRetrieverStore{})
	res, _, err := r.Retrieve(context.Background(), &fakeSummariser{}, "hello", nil, 500)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Stage2 != StageNO {
		t.Fatalf("expected NO with empty store, got %s", res.Stage2)
	}
}

func TestTopDownRetriever_YESReturnsZeroEpisodes(t *testing.T) {
	q := lexicalVector("pricing question", 16)
	theme := Theme{ID: "t1", Embedding: q, SemanticIDs: []string{"f1"}}
	store := &fakeRetrieverStore{
		themes: []Theme{theme},
		semantics: map[string][]Semantic{
			"t1": {{ID: "f1", Content: "pricing is $50/month", Embedding: q, SourceEpisodeIDs: []string{"e1"}}},
		},
		episodes: map[string]Episode{"e1": {ID: "e1", Summary: "talked pricing"}},
	}
	r := NewTopDownRetriever(store)
	res, _, err := r.Retrieve(context.Background(), &fakeSummariser{reply: "YES"}, "pricing question", q, 500)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Stage2 != StageYES {
		t.Fatalf("expected YES, got %s", res.Stage2)
	}
	if len(res.Episodes) != 0 {
		t.Fatalf("YES decision must return zero episodes, got %d", len(res.Episodes))
	}
}

func TestTopDownRetriever_PartialExpandsToReferencedEpisodesOnly(t *testing.T) {
	q := lexicalVector("pricing question", 16)
	theme := Theme{ID: "t1", Embedding: q, SemanticIDs: []string{"f1"}}
	store := &fakeRetrieverStore{
		themes: []Theme{theme},
		semantics: map[string][]Semantic{
			"t1": {{ID: "f1", Content: "pricing is $50/month", Embedding: q, SourceEpisodeIDs: []string{"e1"}}},
		},
		episodes: map[string]Episode{
			"e1": {ID: "e1", Summary: "talked pricing"},
			"e2": {ID: "e2", Summary: "unrelated episode, never referenced"},
		},
	}
	r := NewTopDownRetriever(store)
	res, _, err := r.Retrieve(context.Background(), &fakeSummariser{reply: "PARTIAL"}, "pricing question", q, 500)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Stage2 != StagePARTIAL {
		t.Fatalf("expected PARTIAL, got %s", res.Stage2)
	}
	for _, ep := range res.Episodes {
		referenced := false
		for _, f := range res.Semantics {
			for _, id := range f.SourceEpisodeIDs {
				if id == ep.ID {
					referenced = true
				}
			}
		}
		if !referenced {
			t.Fatalf("episode %s returned but not referenced by any returned semantic", ep.ID)
		}
	}
}

func TestTopDownRetriever_ParseErrorDefaultsToPartial(t *testing.T) {
	q := lexicalVector("pricing question", 16)
	theme := Theme{ID: "t1", Embedding: q, SemanticIDs: []string{"f1"}}
	store := &fakeRetrieverStore{
		themes:    []Theme{theme},
		semantics: map[string][]Semantic{"t1": {{ID: "f1", Content: "pricing is $50/month", Embedding: q, SourceEpisodeIDs: []string{"e1"}}}},
		episodes:  map[string]Episode{"e1": {ID: "e1", Summary: "talked pricing"}},
	}
	r := NewTopDownRetriever(store)
	res, _, err := r.Retrieve(context.Background(), &fakeSummariser{reply: "unparseable garbage"}, "pricing question", q, 500)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Stage2 != StagePARTIAL {
		t.Fatalf("expected parse error to default to PARTIAL, got %s", res.Stage2)
	}
}

package memory

import (
	"context"
	"testing"

	"memoryengine/internal/persistence/databases"
)

func TestThemeMaintainer_SplitsOversizedTheme(t *testing.T) {
	ctx := context.Background()
	store := databases.NewInMemoryMemoryStore()
	tm := NewThemeManager(&fakeEmbedder{})
	graph := databases.NewMemoryGraph()
	maint := NewThemeMaintainer(store, tm, graph)

	const n = MaxSemanticsPerTheme + 1
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := "s" + string(rune('a'+i))
		ids[i] = id
		text := "golang channels and goroutines"
		if i%2 == 1 {
			text = "python asyncio event loops"
		}
		sem := Semantic{ID: id, Content: text, ThemeID: "big", Embedding: lexicalVector(text, 16)}
		if err := store.UpsertSemantic(ctx, semanticToRow(sem)); err != nil {
			t.Fatalf("upsert semantic: %v", err)
		}
	}
	big := Theme{ID: "big", Name: "mixed", SemanticIDs: ids, Embedding: lexicalVector("golang channels python asyncio", 16)}
	if err := store.UpsertTheme(ctx, themeToRow(big)); err != nil {
		t.Fatalf("upsert theme: %v", err)
	}

	report, err := maint.Run(ctx, &fakeSummariser{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Split) != 1 || report.Split[0] != "big" {
		t.Fatalf("expected theme %q to split, got %#v", "big", report.Split)
	}

	remaining, err := store.ListThemes(ctx)
	if err != nil {
		t.Fatalf("list themes: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 child themes after split, got %d", len(remaining))
	}
	for _, row := range remaining {
		if row.ID == "big" {
			t.Fatalf("original oversized theme should have been deleted")
		}
	}

	sems, err := store.ListSemanticsByTheme(ctx, remaining[0].ID)
	if err != nil {
		t.Fatalf("list semantics by theme: %v", err)
	}
	if len(sems) == 0 {
		t.Fatalf("expected reparented semantics under the new theme")
	}

	neighbours, err := graph.Neighbors(ctx, sems[0].ID, databases.RelationBelongsToTheme)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbours) != 1 || neighbours[0] != remaining[0].ID {
		t.Fatalf("expected provenance edge to the new child theme, got %#v", neighbours)
	}
}

func TestThemeMaintainer_MergesSmallSimilarThemes(t *testing.T) {
	ctx := context.Background()
	store := databases.NewInMemoryMemoryStore()
	tm := NewThemeManager(&fakeEmbedder{})
	graph := databases.NewMemoryGraph()
	maint := NewThemeMaintainer(store, tm, graph)

	emb := lexicalVector("rust ownership and borrowing", 16)
	a := Theme{ID: "ta", Name: "rust-a", SemanticIDs: []string{"sa"}, Embedding: emb}
	b := Theme{ID: "tb", Name: "rust-b", SemanticIDs: []string{"sb"}, Embedding: emb}
	if err := store.UpsertTheme(ctx, themeToRow(a)); err != nil {
		t.Fatalf("upsert theme a: %v", err)
	}
	if err := store.UpsertTheme(ctx, themeToRow(b)); err != nil {
		t.Fatalf("upsert theme b: %v", err)
	}
	if err := store.UpsertSemantic(ctx, semanticToRow(Semantic{ID: "sa", Content: "rust ownership", ThemeID: "ta", Embedding: emb})); err != nil {
		t.Fatalf("upsert semantic a: %v", err)
	}
	if err := store.UpsertSemantic(ctx, semanticToRow(Semantic{ID: "sb", Content: "rust borrowing", ThemeID: "tb", Embedding: emb})); err != nil {
		t.Fatalf("upsert semantic b: %v", err)
	}

	report, err := maint.Run(ctx, &fakeSummariser{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Merged) != 1 {
		t.Fatalf("expected one theme absorbed by merge, got %#v", report.Merged)
	}

	remaining, err := store.ListThemes(ctx)
	if err != nil {
		t.Fatalf("list themes: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected exactly 1 surviving theme after merge, got %d", len(remaining))
	}

	survivorID := remaining[0].ID
	sems, err := store.ListSemanticsByTheme(ctx, survivorID)
	if err != nil {
		t.Fatalf("list semantics by theme: %v", err)
	}
	if len(sems) != 2 {
		t.Fatalf("expected both semantics reparented under the surviving theme, got %d", len(sems))
	}

	// sb moved from the absorbed theme "tb" onto the survivor; that
	// reparenting must have recorded a fresh provenance edge.
	neighbours, err := graph.Neighbors(ctx, "sb", databases.RelationBelongsToTheme)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbours) != 1 || neighbours[0] != survivorID {
		t.Fatalf("expected sb's provenance edge to point at the surviving theme, got %#v", neighbours)
	}
}

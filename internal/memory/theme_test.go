package memory

import (
	"context"
	"testing"
)

func TestThemeManager_AssignCreatesFirstTheme(t *testing.T) {
	ctx := context.Background()
	tm := NewThemeManager(&fakeEmbedder{})
	fact := Semantic{ID: "f1", Content: "TypeScript uses structural typing", Embedding: lexicalVector("TypeScript uses structural typing", 16)}
	dec, err := tm.Assign(ctx, &fakeSummariser{}, fact, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if dec.NewTheme == nil {
		t.Fatalf("expected a new theme when no themes exist")
	}
	if len(dec.NewTheme.SemanticIDs) != 1 || dec.NewTheme.SemanticIDs[0] != "f1" {
		t.Fatalf("unexpected semantic ids: %#v", dec.NewTheme.SemanticIDs)
	}
}

func TestThemeManager_AssignJoinsCloseTheme(t *testing.T) {
	ctx := context.Background()
	tm := NewThemeManager(&fakeEmbedder{})
	emb := lexicalVector("TypeScript generics are powerful", 16)
	theme := Theme{ID: "t1", Embedding: emb, SemanticIDs: []string{"existing"}}
	fact := Semantic{ID: "f2", Content: "TypeScript generics are powerful", Embedding: emb}
	dec, err := tm.Assign(ctx, &fakeSummariser{}, fact, []Theme{theme})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if dec.ExistingThemeID != "t1" {
		t.Fatalf("expected fact to join existing theme, got %#v", dec)
	}
}

func TestThemeManager_ShouldSplitFallbackBoundary(t *testing.T) {
	tm := NewThemeManager(&fakeEmbedder{})
	if tm.ShouldSplit(MaxSemanticsPerTheme) {
		t.Fatalf("size=MAX should not split under fallback (<10 observations)")
	}
	if !tm.ShouldSplit(MaxSemanticsPerTheme + 1) {
		t.Fatalf("size=MAX+1 should split under fallback")
	}
}

func TestThemeManager_ShouldMergeRequiresBothSmall(t *testing.T) {
	tm := NewThemeManager(&fakeEmbedder{})
	if tm.ShouldMerge(MinSemanticsPerTheme, 1, 0.99) {
		t.Fatalf("merge must not fire when one side is at/above MIN regardless of similarity")
	}
	if !tm.ShouldMerge(1, 1, 0.95) {
		t.Fatalf("expected merge to fire for two small, highly similar themes (fallback >=0.80)")
	}
}

func TestThemeManager_SplitPartitionsWithNoEmptyGroup(t *testing.T) {
	ctx := context.Background()
	tm := NewThemeManager(&fakeEmbedder{})

	semantics := make([]Semantic, 0, 13)
	for i := 0; i < 12; i++ {
		semantics = append(semantics, Semantic{ID: idFor(i), Content: "TypeScript fact", Embedding: lexicalVector("TypeScript fact common", 16)})
	}
	semantics = append(semantics, Semantic{ID: "f13", Content: "TypeScript strict mode enabled", Embedding: lexicalVector("TypeScript strict mode enabled unique", 16)})

	parent := Theme{ID: "parent", MessageCount: 13, SemanticIDs: idsAll(semantics)}
	childA, childB, err := tm.Split(ctx, &fakeSummariser{}, parent, semantics)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(childA.SemanticIDs) == 0 || len(childB.SemanticIDs) == 0 {
		t.Fatalf("split must not produce an empty group: a=%d b=%d", len(childA.SemanticIDs), len(childB.SemanticIDs))
	}
	seen := map[string]bool{}
	for _, id := range append(append([]string{}, childA.SemanticIDs...), childB.SemanticIDs...) {
		if seen[id] {
			t.Fatalf("semantic %s appears in both child groups", id)
		}
		seen[id] = true
	}
	if len(seen) != 13 {
		t.Fatalf("expected partition to cover all 13 semantics, got %d", len(seen))
	}
	if childA.MessageCount+childB.MessageCount != parent.MessageCount {
		t.Fatalf("expected split message counts to sum to parent: %d+%d != %d", childA.MessageCount, childB.MessageCount, parent.MessageCount)
	}
}

func TestThemeManager_RecomputeKNN_NoSelfLoopsDescending(t *testing.T) {
	tm := NewThemeManager(&fakeEmbedder{})
	themes := []Theme{
		{ID: "a", Embedding: lexicalVector("alpha beta gamma", 16)},
		{ID: "b", Embedding: lexicalVector("alpha beta delta", 16)},
		{ID: "c", Embedding: lexicalVector("totally unrelated zzz", 16)},
	}
	knn := tm.RecomputeKNN(themes)
	for id, neighbours := range knn {
		if len(neighbours) > KNNK {
			t.Fatalf("theme %s: neighbour count %d exceeds K=%d", id, len(neighbours), KNNK)
		}
		for _, n := range neighbours {
			if n == id {
				t.Fatalf("theme %s lists itself as a neighbour", id)
			}
		}
	}
}

func TestSparsityScore_BalancedHigherThanSkewed(t *testing.T) {
	balanced := []Theme{{SemanticIDs: make([]string, 5)}, {SemanticIDs: make([]string, 5)}}
	skewed := []Theme{{SemanticIDs: make([]string, 9)}, {SemanticIDs: make([]string, 1)}}
	if SparsityScore(balanced) <= SparsityScore(skewed) {
		t.Fatalf("expected balanced distribution to score higher than skewed")
	}
}

func idFor(i int) string { return string(rune('a' + i)) }
func idsAll(s []Semantic) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].ID
	}
	return out
}

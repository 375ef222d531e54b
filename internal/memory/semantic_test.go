package memory

import (
	"context"
	"testing"
)

func TestSemanticExtractor_ExtractsUpToThree(t *testing.T) {
	ctx := context.Background()
	s := &fakeSummariser{reply: "fact one about rockets\nfact two about engines\nfact three about fuel\nfact four should be dropped"}
	x := NewSemanticExtractor(&fakeEmbedder{}, 0)
	facts, err := x.Extract(ctx, s, Episode{ID: "e1", Summary: "talked about rockets"}, nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d: %#v", len(facts), facts)
	}
	for _, f := range facts {
		if len(f.SourceEpisodeIDs) != 1 || f.SourceEpisodeIDs[0] != "e1" {
			t.Fatalf("expected episode back-pointer, got %#v", f.SourceEpisodeIDs)
		}
		if f.ThemeID != "" {
			t.Fatalf("extractor must not assign a theme")
		}
	}
}

func TestSemanticExtractor_DropsDuplicatesAgainstNeighbours(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{}
	existingVec, _ := emb.Embed(ctx, "text-matching", []string{"the rocket launch was delayed"})
	neighbour := Semantic{ID: "n1", Content: "the rocket launch was delayed", Embedding: existingVec[0]}

	s := &fakeSummariser{reply: "the rocket launch was delayed"}
	x := NewSemanticExtractor(emb, 0)
	facts, err := x.Extract(ctx, s, Episode{ID: "e1", Summary: "rocket delay"}, []Semantic{neighbour})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("expected near-duplicate fact to be dropped, got %#v", facts)
	}
}

func TestSemanticExtractor_DropsGreetingChatter(t *testing.T) {
	lines := parseFactLines("Hello there\nthe user asked about pricing\nPrice is $50/month")
	if len(lines) != 1 || lines[0] != "Price is $50/month" {
		t.Fatalf("expected greeting/chatter lines filtered, got %#v", lines)
	}
}

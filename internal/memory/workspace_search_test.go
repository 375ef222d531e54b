package memory

import (
	"context"
	"strings"
	"testing"

	"memoryengine/internal/persistence/databases"
	"memoryengine/internal/rag/retrieve"
)

func TestAsWorkspaceGrep_ReturnsFormattedHits(t *testing.T) {
	ctx := context.Background()
	search := databases.NewMemorySearch()
	_ = search.Index(ctx, "doc:readme", "deployment runbook for the ingest pipeline", map[string]string{"title": "Runbook"})

	grep := AsWorkspaceGrep(retrieve.Deps{Search: search})
	hits, err := grep(ctx, "runbook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if !strings.HasPrefix(hits[0], "Runbook:") {
		t.Fatalf("expected hit to be prefixed with the doc title, got %q", hits[0])
	}
}

func TestAsWorkspaceGrep_EmptyWithNoBackends(t *testing.T) {
	grep := AsWorkspaceGrep(retrieve.Deps{})
	hits, err := grep(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits with no backends configured, got %#v", hits)
	}
}

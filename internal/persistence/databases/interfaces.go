package databases

import (
	"context"
)

// SearchResult represents a single hit from the full-text search backend.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable FTS backend.
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	GetByID(ctx context.Context, id string) (SearchResult, bool, error)
}

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // Higher is closer by default
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

// Node is a minimal in-memory representation of a graph node.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Node labels and edge relations used to record how a semantic fact was
// derived: which episode it came from and which theme it was filed under
// (spec §4.2 "Semantic Facts" / §4.3 "Themes"). The memory engine writes
// these so a later audit or the Active Retrieval loop can walk provenance
// without re-deriving it from the row store.
const (
	LabelEpisode  = "Episode"
	LabelSemantic = "Semantic"
	LabelTheme    = "Theme"

	RelationDerivedFrom    = "DERIVED_FROM"     // Semantic -> Episode
	RelationBelongsToTheme = "BELONGS_TO_THEME" // Semantic -> Theme
)

// GraphStats reports the size of a GraphDB backend, surfaced through the
// engine's ObservabilityRecorder so an operator can see provenance growth
// alongside retrieval hit rate.
type GraphStats struct {
	Nodes int
	Edges int
}

// GraphDB defines a portable interface for minimal graph operations.
type GraphDB interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	Neighbors(ctx context.Context, id string, rel string) ([]string, error)
	GetNode(ctx context.Context, id string) (Node, bool)
	Stats(ctx context.Context) (GraphStats, error)
}

// RecordProvenance upserts the Semantic node and its DERIVED_FROM/
// BELONGS_TO_THEME edges for a fact the distillation step just filed. g may
// be nil, in which case this is a no-op — provenance tracking is an optional
// addition to the memory store, not a requirement of it.
func RecordProvenance(ctx context.Context, g GraphDB, semanticID, episodeID, themeID string) error {
	if g == nil {
		return nil
	}
	if err := g.UpsertNode(ctx, semanticID, []string{LabelSemantic}, nil); err != nil {
		return err
	}
	if episodeID != "" {
		if err := g.UpsertNode(ctx, episodeID, []string{LabelEpisode}, nil); err != nil {
			return err
		}
		if err := g.UpsertEdge(ctx, semanticID, RelationDerivedFrom, episodeID, nil); err != nil {
			return err
		}
	}
	if themeID != "" {
		if err := g.UpsertNode(ctx, themeID, []string{LabelTheme}, nil); err != nil {
			return err
		}
		if err := g.UpsertEdge(ctx, semanticID, RelationBelongsToTheme, themeID, nil); err != nil {
			return err
		}
	}
	return nil
}

// Manager holds concrete database backends resolved from configuration.
// Memory is the additional port for the hierarchical memory store (themes,
// semantics, episodes, user profiles) alongside the teacher's FTS/vector/graph
// triad.
type Manager struct {
	Search FullTextSearch
	Vector VectorStore
	Graph  GraphDB
	Memory MemoryStore
}

// Close attempts to close any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Search).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Vector).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Graph).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Memory).(interface{ Close() }); ok {
		c.Close()
	}
}

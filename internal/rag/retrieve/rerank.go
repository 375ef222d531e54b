package retrieve

import "context"

// Reranker optionally reorders the fused candidate list for a workspace
// query (e.g. via a cross-encoder). Implementations must not drop items or
// clear their Metadata.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []RetrievedItem) ([]RetrievedItem, error)
}

// NoopReranker is the default Reranker: it leaves the RRF-fused ordering
// untouched. AsWorkspaceGrep uses this until a host wires a real reranker.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, items []RetrievedItem) ([]RetrievedItem, error) {
	return items, nil
}

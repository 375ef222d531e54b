package retrieve

import (
    "context"

    "memoryengine/internal/persistence/databases"
)

// Deps wires the hybrid retrieval pipeline to its backing stores. Any of
// Search, Vector, or Graph may be nil; the pipeline degrades to whichever
// sources are present (spec §6 Config-missing disposition).
type Deps struct {
    Search   databases.FullTextSearch
    Vector   databases.VectorStore
    Graph    GraphFacade
    Embed    func(ctx context.Context, text string) ([]float32, error)
    Reranker Reranker
}

// Retrieve runs the full hybrid pipeline: plan the query, fetch FTS and
// vector candidates in parallel, fuse them via RRF, optionally diversify,
// expand via the graph, rerank, attach doc metadata, and generate snippets.
func Retrieve(ctx context.Context, d Deps, query string, opt RetrieveOptions) (RetrieveResponse, error) {
    plan := BuildQueryPlan(ctx, query, opt)

    var embVec []float32
    if d.Embed != nil && plan.VecK > 0 {
        v, err := d.Embed(ctx, plan.Query)
        if err == nil {
            embVec = v
        }
    }

    fts, vec, diag, err := ParallelCandidates(ctx, d.Search, d.Vector, plan, embVec)
    if err != nil {
        return RetrieveResponse{}, err
    }

    fused := FuseAndDiversify(fts, vec, plan, opt)

    rr := d.Reranker
    if rr == nil {
        rr = NoopReranker{}
    }
    items, debug, err := AssembleResults(ctx, d.Graph, rr, plan, opt, fused)
    if err != nil {
        return RetrieveResponse{}, err
    }

    if opt.IncludeSnippet {
        items = GenerateSnippets(ctx, d.Search, items, SnippetOptions{Lang: plan.Lang, Query: plan.Query})
    }
    items = AttachDocMetadata(ctx, d.Search, items)

    if debug == nil {
        debug = map[string]any{}
    }
    debug["ft_latency_ms"] = diag.FtLatency.Milliseconds()
    debug["vec_latency_ms"] = diag.VecLatency.Milliseconds()
    debug["ft_count"] = diag.FtCount
    debug["vec_count"] = diag.VecCount

    return RetrieveResponse{Query: query, Items: items, Debug: debug}, nil
}

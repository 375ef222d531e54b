package retrieve

import (
    "context"
    "time"

    "golang.org/x/sync/errgroup"

    "memoryengine/internal/persistence/databases"
)

// SourceDiagnostics carries per-source retrieval timings and counts.
type SourceDiagnostics struct {
    FtLatency  time.Duration
    VecLatency time.Duration
    FtCount    int
    VecCount   int
}

// ParallelCandidates queries FTS and vector stores in parallel according to the plan.
// It returns the raw candidates from each source and diagnostics.
func ParallelCandidates(ctx context.Context, search databases.FullTextSearch, vector databases.VectorStore, plan QueryPlan, embVec []float32) (fts []databases.SearchResult, vrs []databases.VectorResult, diag SourceDiagnostics, err error) {
    g, gctx := errgroup.WithContext(ctx)

    var ftDur, vecDur time.Duration

    if plan.FtK > 0 && search != nil {
        g.Go(func() error {
            t0 := time.Now()
            // Prefer chunk-aware search when available.
            type chunkSearcher interface {
                SearchChunks(ctx context.Context, query string, lang string, limit int, filter map[string]string) ([]databases.SearchResult, error)
            }
            var res []databases.SearchResult
            var e error
            if cs, ok := search.(chunkSearcher); ok {
                res, e = cs.SearchChunks(gctx, plan.Query, plan.Lang, plan.FtK, plan.Filters)
            } else {
                res, e = search.Search(gctx, plan.Query, plan.FtK)
            }
            ftDur = time.Since(t0)
            fts = res
            return e
        })
    }

    if plan.VecK > 0 && vector != nil && len(embVec) > 0 {
        g.Go(func() error {
            t0 := time.Now()
            res, e := vector.SimilaritySearch(gctx, embVec, plan.VecK, plan.Filters)
            vecDur = time.Since(t0)
            vrs = res
            return e
        })
    }

    if err = g.Wait(); err != nil {
        return nil, nil, SourceDiagnostics{}, err
    }

    diag = SourceDiagnostics{FtLatency: ftDur, VecLatency: vecDur, FtCount: len(fts), VecCount: len(vrs)}
    return fts, vrs, diag, nil
}


package memory

import (
	"context"
	"fmt"

	"memoryengine/internal/rag/retrieve"
)

// AsWorkspaceGrep adapts the hybrid full-text/vector/graph retrieval
// pipeline (backed by a databases.Manager's Search/Vector/Graph fields) to
// HostCallbacks.WorkspaceGrep's signature, the second link in the Active
// Retrieval chain after the memory store itself comes up empty.
func AsWorkspaceGrep(deps retrieve.Deps) func(ctx context.Context, query string) ([]string, error) {
	return func(ctx context.Context, query string) ([]string, error) {
		resp, err := retrieve.Retrieve(ctx, deps, query, retrieve.RetrieveOptions{
			K:              8,
			FtK:            20,
			VecK:           20,
			Alpha:          0.5,
			UseRRF:         true,
			IncludeSnippet: true,
		})
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(resp.Items))
		for _, it := range resp.Items {
			line := it.Snippet
			if line == "" {
				line = it.Text
			}
			if it.Doc.Title != "" {
				out = append(out, fmt.Sprintf("%s: %s", it.Doc.Title, line))
				continue
			}
			out = append(out, fmt.Sprintf("%s: %s", it.ID, line))
		}
		return out, nil
	}
}

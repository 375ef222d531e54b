package memory

import "context"

// Embedder is the embedding port (spec §2.1, §6): an opaque vector producer.
// The only property the core relies on is that cosine similarity between
// two embeddings is meaningful. task is a Jina-style hint such as "query" or
// "text-matching"; implementations may ignore it.
type Embedder interface {
	Embed(ctx context.Context, task string, texts []string) ([][]float32, error)
}

// Summariser is "a cheap text-to-text function" (spec §1): used to summarise
// episode buffers, extract facts, name themes, and answer the Stage-II
// sufficiency question. Grounded on the shape of the teacher's LLM provider
// call (a single prompt-in, text-out round trip), generalized away from any
// specific provider SDK since the spec treats the LLM as an external
// collaborator (§1 Out of scope).
type Summariser interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HostCallbacks are the optional host->core callbacks of spec §6. Every
// field may be nil; absence degrades gracefully (ErrHostCallbackMissing),
// never a fatal error.
type HostCallbacks struct {
	// LLM is a raw prompt->text call distinct from Summariser, used by
	// Active Retrieval when it needs the host's own model rather than the
	// engine's configured summariser.
	LLM func(ctx context.Context, prompt string) (string, error)

	// MemoryRecall searches host-side memory outside this engine's store
	// (e.g. a separate notes system) and returns matching strings.
	MemoryRecall func(ctx context.Context, query string) ([]string, error)

	// MemoryStore persists a host-side memory entry.
	MemoryStore func(ctx context.Context, text, category string, importance float64) error

	// MemoryForget removes host-side memory entries matching query.
	MemoryForget func(ctx context.Context, query string) error

	// WorkspaceGrep searches the host's local workspace (files, code) for a
	// query string, used as the second link in the Active Retrieval chain.
	WorkspaceGrep func(ctx context.Context, query string) ([]string, error)

	// WebSearch performs an external web search, the last link in the
	// Active Retrieval chain, gated to uncertainty >= medium.
	WebSearch func(ctx context.Context, query string) ([]string, error)
}

func (h HostCallbacks) hasMemoryRecall() bool  { return h.MemoryRecall != nil }
func (h HostCallbacks) hasWorkspaceGrep() bool { return h.WorkspaceGrep != nil }
func (h HostCallbacks) hasWebSearch() bool     { return h.WebSearch != nil }

package memory

import (
	"context"
	"strings"
	"testing"

	"memoryengine/internal/config"
	"memoryengine/internal/persistence/databases"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := databases.NewInMemoryMemoryStore()
	e := NewEngine(EngineConfig{
		Store:            store,
		Embedder:         &fakeEmbedder{dim: 32},
		Summariser:       &fakeSummariser{},
		EpisodeBatchSize: 2,
		TokenBudget:      4000,
		Graph:            databases.NewMemoryGraph(),
	})
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return e
}

func TestEngine_BeforePromptBuild_EmptyStoreIsANoOp(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.BeforePromptBuild(context.Background(), "sess-1", "what did we discuss?", "", nil)
	if err != nil {
		t.Fatalf("before_prompt_build: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no items from an empty store, got %#v", result.Items)
	}
}

func TestEngine_AgentEnd_DistillsEpisodeIntoThemeAndSemantic(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	msgs := []Message{
		{Role: RoleUser, Text: "What version of Kubernetes do we run in production?", Timestamp: 1},
		{Role: RoleAssistant, Text: "We run Kubernetes v1.29 in production with three worker nodes.", Timestamp: 2},
	}
	if err := e.AgentEnd(ctx, "sess-1", msgs, nil, nil); err != nil {
		t.Fatalf("agent_end: %v", err)
	}

	themes, err := e.store.ListThemes(ctx)
	if err != nil {
		t.Fatalf("list themes: %v", err)
	}
	if len(themes) != 1 {
		t.Fatalf("expected exactly one theme created from the first batch, got %d", len(themes))
	}

	semPage, err := e.store.ScanSemantics(ctx, 0, 100)
	if err != nil {
		t.Fatalf("scan semantics: %v", err)
	}
	if len(semPage.Rows) == 0 {
		t.Fatalf("expected at least one semantic fact distilled from the episode")
	}
	for _, s := range semPage.Rows {
		if s.ThemeID != themes[0].ID {
			t.Fatalf("expected semantic to be assigned to the created theme, got themeID=%q", s.ThemeID)
		}
	}

	epPage, err := e.store.ScanEpisodes(ctx, 0, 100)
	if err != nil {
		t.Fatalf("scan episodes: %v", err)
	}
	if len(epPage.Rows) != 1 {
		t.Fatalf("expected exactly one episode flushed from a full 2-message batch, got %d", len(epPage.Rows))
	}

	stats, err := e.GraphStats(ctx)
	if err != nil {
		t.Fatalf("graph stats: %v", err)
	}
	if stats.Nodes == 0 || stats.Edges == 0 {
		t.Fatalf("expected distill to record provenance nodes/edges, got %+v", stats)
	}
}

func TestEngine_AgentEnd_AppliesCorrectionDiscard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	discarded := ""
	e.callbacks = HostCallbacks{
		MemoryForget: func(ctx context.Context, q string) error { discarded = q; return nil },
	}

	msgs := []Message{
		{Role: RoleUser, Text: "不对，产品价格应该是 100 元不是 50 元", Timestamp: 1},
	}
	existing := []string{"产品价格是 50 元每月"}
	if err := e.AgentEnd(ctx, "sess-2", msgs, existing, nil); err != nil {
		t.Fatalf("agent_end: %v", err)
	}
	if discarded == "" {
		t.Fatalf("expected the correction to trigger a discard callback")
	}
}

func TestEngine_ToolResultPersist_CompactsLongOutput(t *testing.T) {
	e := newTestEngine(t)
	long := ""
	for i := 0; i < 2000; i++ {
		long += "word "
	}
	out, err := e.ToolResultPersist(context.Background(), long)
	if err != nil {
		t.Fatalf("tool_result_persist: %v", err)
	}
	if len(out) >= len(long) {
		t.Fatalf("expected compacted output to be shorter than the input")
	}
}

func TestEngine_CronWeekly_RunsWithoutError(t *testing.T) {
	e := newTestEngine(t)
	report, err := e.CronWeekly(context.Background(), nowMs())
	if err != nil {
		t.Fatalf("cron_weekly: %v", err)
	}
	if report.Failures != 0 {
		t.Fatalf("expected no failures sweeping an empty store, got %d", report.Failures)
	}
}

func TestEngine_HookRecoversFromPanic(t *testing.T) {
	e := newTestEngine(t)
	e.embedder = panicEmbedder{}
	_, err := e.BeforePromptBuild(context.Background(), "sess-1", "q", "", nil)
	if err == nil {
		t.Fatalf("expected the panic to surface as an error, not escape the hook")
	}
}

// TestEngine_BeforePromptBuild_UsesDBConfigWorkspaceGrep exercises the full
// chain from a host-left-nil Callbacks.WorkspaceGrep through Init building
// the hybrid FTS/vector backend, to Active Retrieval calling into it via
// retrieve.Retrieve when the assistant's last answer was uncertain.
func TestEngine_BeforePromptBuild_UsesDBConfigWorkspaceGrep(t *testing.T) {
	store := databases.NewInMemoryMemoryStore()
	e := NewEngine(EngineConfig{
		Store:            store,
		Embedder:         &fakeEmbedder{dim: 32},
		Summariser:       &fakeSummariser{},
		EpisodeBatchSize: 2,
		TokenBudget:      4000,
		DBConfig:         &config.Config{},
	})
	ctx := context.Background()
	if err := e.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	mgr := e.WorkspaceManager()
	if mgr.Search == nil {
		t.Fatalf("expected Init to build a workspace-grep full-text backend from DBConfig")
	}
	if err := mgr.Search.Index(ctx, "doc:runbook", "deployment runbook for the ingest pipeline", map[string]string{"title": "Runbook"}); err != nil {
		t.Fatalf("index: %v", err)
	}

	result, err := e.BeforePromptBuild(ctx, "sess-1", "What version of the runbook do we use?", "I think the answer is in the runbook.", nil)
	if err != nil {
		t.Fatalf("before_prompt_build: %v", err)
	}

	found := false
	for _, item := range result.Items {
		if item.Tier == TierTools && strings.Contains(item.Text, "Runbook:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an active-retrieval item sourced from the DBConfig-built workspace-grep backend, got %#v", result.Items)
	}
}

type panicEmbedder struct{}

func (panicEmbedder) Embed(ctx context.Context, task string, texts []string) ([][]float32, error) {
	panic("simulated embedder failure")
}

package memory

import (
	"context"
	"fmt"
	"time"

	"memoryengine/internal/config"
	"memoryengine/internal/eventing"
	"memoryengine/internal/logging"
	"memoryengine/internal/objectstore"
	"memoryengine/internal/observability"
	"memoryengine/internal/persistence/databases"
	"memoryengine/internal/rag/retrieve"
)

// Engine is the explicit handle a host agent wires into its prompt-build
// and tool loops (spec §9 "explicit engine handle, no singletons"). It owns
// one MemoryStore, one Embedder, one Summariser and the optional host
// callbacks, and exposes the four named hooks of spec §6.
type Engine struct {
	store      databases.MemoryStore
	embedder   Embedder
	summariser Summariser
	callbacks  HostCallbacks

	episodeBuilders map[string]*EpisodeBuilder // sessionID -> builder
	semantics       *SemanticExtractor
	themes          *ThemeManager
	retriever       *TopDownRetriever
	budget          *BudgetManager
	compactor       *OutputCompactor
	decay           *DecayManager
	feedback        *FeedbackTuner
	preloader       *PredictivePreloader
	observability   *ObservabilityRecorder
	toolkit         *MemoryToolkit
	themeMaintainer *ThemeMaintainer

	cache     eventing.ThemeCache         // optional; nil disables cross-instance invalidation
	publisher *eventing.MaintenancePublisher // optional; nil disables maintenance-event export
	graph     databases.GraphDB           // optional; nil disables provenance tracking

	dbConfig   *config.Config    // optional; builds the FTS/vector workspace-grep backend on Init
	workspace  databases.Manager // populated by Init when dbConfig is set

	episodeBatchSize int
	tokenBudget      int
}

// EngineConfig bundles an Engine's required collaborators and tunables.
type EngineConfig struct {
	Store            databases.MemoryStore
	Embedder         Embedder
	Summariser       Summariser
	Callbacks        HostCallbacks
	EpisodeBatchSize int // <=0 uses spec default (5)
	TokenBudget      int // <=0 uses spec default (4000)

	// Cache, when set, broadcasts theme invalidations to peer engines
	// sharing this store (spec §5 "Shared resources").
	Cache eventing.ThemeCache
	// Publisher, when set, exports a MaintenanceEvent after each
	// cron_weekly pass.
	Publisher *eventing.MaintenancePublisher
	// Metrics, when set, exports observability counters/histograms via
	// OpenTelemetry (spec §4.10).
	Metrics observability.MetricsSink
	// Graph, when set, records how each semantic fact was derived
	// (DERIVED_FROM its episode, BELONGS_TO_THEME its theme) so the
	// provenance can be walked independently of the row store. Optional.
	Graph databases.GraphDB

	// DBConfig, when set and Callbacks.WorkspaceGrep is left nil, builds the
	// full-text/vector/graph backends (databases.NewManager) on Init and
	// wires them as the second link of the Active Retrieval chain (spec
	// §4.6) via AsWorkspaceGrep. A host that already runs its own workspace
	// search can leave this nil and supply Callbacks.WorkspaceGrep directly.
	DBConfig *config.Config
}

// NewEngine wires every component against a shared store. Init must be
// called once before first use (it initialises the store's schema).
func NewEngine(cfg EngineConfig) *Engine {
	adapter := &storeAdapter{store: cfg.Store}
	themes := NewThemeManager(cfg.Embedder)
	observer := NewObservabilityRecorder()
	if cfg.Metrics != nil {
		observer.WithMetrics(cfg.Metrics)
	}
	return &Engine{
		store:            cfg.Store,
		embedder:         cfg.Embedder,
		summariser:       cfg.Summariser,
		callbacks:        cfg.Callbacks,
		episodeBuilders:  map[string]*EpisodeBuilder{},
		semantics:        NewSemanticExtractor(cfg.Embedder, DedupeThreshold),
		themes:           themes,
		retriever:        NewTopDownRetriever(adapter),
		budget:           NewBudgetManager(cfg.TokenBudget),
		compactor:        NewOutputCompactor(),
		decay:            NewDecayManager(cfg.Store),
		feedback:         NewFeedbackTuner(),
		preloader:        NewPredictivePreloader(),
		observability:    observer,
		toolkit:          NewMemoryToolkit(),
		themeMaintainer:  NewThemeMaintainer(cfg.Store, themes, cfg.Graph),
		cache:            cfg.Cache,
		publisher:        cfg.Publisher,
		graph:            cfg.Graph,
		dbConfig:         cfg.DBConfig,
		episodeBatchSize: cfg.EpisodeBatchSize,
		tokenBudget:      cfg.TokenBudget,
	}
}

// GraphStats reports the size of the provenance graph, or the zero value
// when no Graph was configured (spec §4.12 observability surfaces whatever
// side channels are actually wired).
func (e *Engine) GraphStats(ctx context.Context) (databases.GraphStats, error) {
	if e.graph == nil {
		return databases.GraphStats{}, nil
	}
	return e.graph.Stats(ctx)
}

// WithArchive enables archival of an episode's raw messages to object
// storage just before the Decay Manager blanks them from the row.
func (e *Engine) WithArchive(store objectstore.ObjectStore) *Engine {
	e.decay.WithArchive(store)
	return e
}

// WorkspaceManager returns the full-text/vector/graph backend Init built
// from DBConfig, or the zero Manager if DBConfig was never set (or the
// host supplied its own Callbacks.WorkspaceGrep instead). Hosts that want
// to index their own documents into the same backend the Active Retrieval
// chain searches call this after Init.
func (e *Engine) WorkspaceManager() databases.Manager {
	return e.workspace
}

// Init initialises the store's schema and, when DBConfig was supplied and
// the host left Callbacks.WorkspaceGrep nil, builds the hybrid FTS/vector
// retrieval backend and wires it as the Active Retrieval chain's workspace
// search link (spec §4.6). A failure to reach a configured backend is
// fatal (ErrFatalInit): the host explicitly asked for this backend, so
// silently degrading to "no workspace search" would hide a
// misconfiguration rather than gracefully handle an absent one.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.store.Init(ctx); err != nil {
		return err
	}
	if e.dbConfig != nil && e.callbacks.WorkspaceGrep == nil {
		mgr, err := databases.NewManager(ctx, *e.dbConfig)
		if err != nil {
			return fmt.Errorf("memory engine init: build workspace-grep backend: %w: %v", ErrFatalInit, err)
		}
		e.workspace = mgr
		e.callbacks.WorkspaceGrep = AsWorkspaceGrep(retrieve.Deps{
			Search: mgr.Search,
			Vector: mgr.Vector,
			Embed: func(ctx context.Context, text string) ([]float32, error) {
				if e.embedder == nil {
					return nil, nil
				}
				vecs, embErr := e.embedder.Embed(ctx, "query", []string{text})
				if embErr != nil {
					return nil, embErr
				}
				if len(vecs) == 0 {
					return nil, nil
				}
				return vecs[0], nil
			},
		})
	}
	return nil
}

// recoverHook ensures a panic inside a hook never escapes to the host (spec
// §7 "nothing thrown escapes a hook callback"); it logs with source context
// and turns the panic into a returned error.
func (e *Engine) recoverHook(hook string, errOut *error) {
	if r := recover(); r != nil {
		logging.Log.WithField("hook", hook).WithField("panic", r).Error("memory engine hook recovered from panic")
		*errOut = fmt.Errorf("memory engine hook %s: recovered from panic: %v", hook, r)
	}
}

func (e *Engine) builderFor(sessionID string) *EpisodeBuilder {
	b, ok := e.episodeBuilders[sessionID]
	if !ok {
		b = NewEpisodeBuilder(sessionID, e.episodeBatchSize, e.embedder)
		e.episodeBuilders[sessionID] = b
	}
	return b
}

// BeforePromptBuild is the before_prompt_build hook (spec §6): embeds the
// query, runs the two-stage retriever, folds in active retrieval when the
// assistant's last answer was uncertain, and returns a budget-fit context
// bundle ready for prompt injection.
func (e *Engine) BeforePromptBuild(ctx context.Context, sessionID, queryText string, lastAssistantAnswer string, recentQueries []string) (result BudgetResult, err error) {
	defer e.recoverHook("before_prompt_build", &err)

	var queryEmbedding []float32
	if e.embedder != nil {
		vecs, embErr := e.embedder.Embed(ctx, "query", []string{queryText})
		if embErr == nil && len(vecs) > 0 {
			queryEmbedding = vecs[0]
		}
	}

	budget := e.tokenBudget
	if budget <= 0 {
		budget = 4000
	}

	retrieveResult, _, retrErr := e.retriever.Retrieve(ctx, e.summariser, queryText, queryEmbedding, budget)
	if retrErr != nil {
		return BudgetResult{}, retrErr
	}

	items := make([]BudgetItem, 0, len(retrieveResult.Themes)+len(retrieveResult.Semantics)+len(retrieveResult.Episodes))
	for _, th := range retrieveResult.Themes {
		items = append(items, BudgetItem{Tier: TierMemory, Text: "theme: " + th.Name})
	}
	for _, s := range retrieveResult.Semantics {
		items = append(items, BudgetItem{Tier: TierMemory, Text: s.Content})
	}
	for _, ep := range retrieveResult.Episodes {
		items = append(items, BudgetItem{Tier: TierMemory, Text: ep.Summary})
	}

	if lastAssistantAnswer != "" {
		level := ClassifyUncertainty(lastAssistantAnswer, queryText, recentQueries)
		active, activeErr := RunActiveRetrieval(ctx, level, queryText, lastAssistantAnswer, e.callbacks)
		if activeErr == nil {
			for _, snippet := range active.Snippets {
				items = append(items, BudgetItem{Tier: TierTools, Text: snippet})
			}
		}
	}

	allocated := e.budget.Allocate(items)

	trace := ObservabilityTrace{
		Query:          queryText,
		TimestampMs:    nowMs(),
		Stage2:         retrieveResult.Stage2,
		TokensInjected: allocated.TotalUsed,
		Satisfaction:   SatisfiedUnknown,
	}
	for _, th := range retrieveResult.Themes {
		trace.MatchedThemes = append(trace.MatchedThemes, th.ID)
	}
	for _, s := range retrieveResult.Semantics {
		trace.SelectedFacts = append(trace.SelectedFacts, s.ID)
	}
	for _, ep := range retrieveResult.Episodes {
		trace.ExpandedEpisodes = append(trace.ExpandedEpisodes, ep.ID)
	}
	e.observability.Record(trace)

	return allocated, nil
}

// ToolResultPersist is the tool_result_persist hook (spec §6): compacts a
// raw tool output through the five-strategy ladder before it re-enters a
// prompt.
func (e *Engine) ToolResultPersist(ctx context.Context, toolOutput string) (out string, err error) {
	defer e.recoverHook("tool_result_persist", &err)
	compacted, _, compErr := e.compactor.Compact(ctx, e.summariser, toolOutput)
	if compErr != nil {
		return toolOutput, compErr
	}
	return compacted, nil
}

// AgentEnd is the agent_end hook (spec §6): folds the turn's messages into
// the Episode Builder, distils semantics on flush, assigns/splits/merges
// themes, and runs the Memory Toolkit's store/discard/summarize pass.
func (e *Engine) AgentEnd(ctx context.Context, sessionID string, messages []Message, existingMemories []string, queryTerms []string) (err error) {
	defer e.recoverHook("agent_end", &err)

	builder := e.builderFor(sessionID)
	var flushed []*Episode
	for _, msg := range messages {
		ep, ready, addErr := builder.Add(ctx, e.summariser, msg)
		if addErr != nil {
			return addErr
		}
		if ep != nil {
			flushed = append(flushed, ep)
		}
		if ready {
			ep, flushErr := builder.Flush(ctx, e.summariser)
			if flushErr != nil {
				return flushErr
			}
			if ep != nil {
				flushed = append(flushed, ep)
			}
		}
	}

	for _, ep := range flushed {
		if persistErr := e.store.UpsertEpisode(ctx, episodeToRow(*ep)); persistErr != nil {
			return fmt.Errorf("agent_end: persist episode: %w", persistErr)
		}
		if distillErr := e.distill(ctx, *ep); distillErr != nil {
			return distillErr
		}
	}

	var userTurn, assistantOutput string
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			userTurn += m.Text + " "
		case RoleAssistant:
			assistantOutput += m.Text + " "
		}
	}
	decisions := e.toolkit.Decide(userTurn, assistantOutput, existingMemories, queryTerms)
	ApplyDecisions(ctx, decisions, e.callbacks)

	return nil
}

// distill extracts semantics from a freshly flushed episode and assigns each
// to a theme, creating a new theme when nothing matches closely enough.
func (e *Engine) distill(ctx context.Context, ep Episode) error {
	themeRows, err := e.store.ListThemes(ctx)
	if err != nil {
		return fmt.Errorf("distill: list themes: %w", err)
	}
	themes := make([]Theme, len(themeRows))
	for i, r := range themeRows {
		themes[i] = rowToTheme(r)
	}

	var neighbours []Semantic
	if ep.Embedding != nil {
		rows, searchErr := e.store.SearchSemantics(ctx, ep.Embedding, 10)
		if searchErr == nil {
			neighbours = make([]Semantic, len(rows))
			for i, r := range rows {
				neighbours[i] = rowToSemantic(r)
			}
		}
	}

	facts, err := e.semantics.Extract(ctx, e.summariser, ep, neighbours)
	if err != nil {
		return fmt.Errorf("distill: extract: %w", err)
	}

	for _, fact := range facts {
		decision, assignErr := e.themes.Assign(ctx, e.summariser, fact, themes)
		if assignErr != nil {
			return fmt.Errorf("distill: assign: %w", assignErr)
		}
		if decision.NewTheme != nil {
			fact.ThemeID = decision.NewTheme.ID
			themes = append(themes, *decision.NewTheme)
			if upErr := e.store.UpsertTheme(ctx, themeToRow(*decision.NewTheme)); upErr != nil {
				return fmt.Errorf("distill: persist new theme: %w", upErr)
			}
		} else {
			fact.ThemeID = decision.ExistingThemeID
			for i := range themes {
				if themes[i].ID != decision.ExistingThemeID {
					continue
				}
				themes[i].SemanticIDs = append(themes[i].SemanticIDs, fact.ID)
				if upErr := e.store.UpsertTheme(ctx, themeToRow(themes[i])); upErr != nil {
					return fmt.Errorf("distill: persist theme: %w", upErr)
				}
				break
			}
		}
		if upErr := e.store.UpsertSemantic(ctx, semanticToRow(fact)); upErr != nil {
			return fmt.Errorf("distill: persist semantic: %w", upErr)
		}
		if provErr := databases.RecordProvenance(ctx, e.graph, fact.ID, ep.ID, fact.ThemeID); provErr != nil {
			logging.Log.WithField("semantic_id", fact.ID).WithField("err", provErr).Warn("distill: record provenance edge failed")
		}
	}
	return nil
}

// CronWeekly is the cron_weekly hook (spec §6): runs the decay sweep and
// rolls the Feedback Tuner's alpha forward from the observability ring
// buffer.
func (e *Engine) CronWeekly(ctx context.Context, nowMs int64) (report SweepReport, err error) {
	defer e.recoverHook("cron_weekly", &err)

	report = e.decay.Sweep(ctx, nowMs)
	e.observability.FinalizeLast(nowMs)
	newAlpha := e.feedback.Adjust(e.observability.Traces())
	e.retriever.SetAlpha(newAlpha)

	maint, maintErr := e.themeMaintainer.Run(ctx, e.summariser)
	if maintErr != nil {
		return report, maintErr
	}
	for _, id := range maint.Split {
		e.publishInvalidation(ctx, id, "split", nil, nowMs)
	}
	for _, id := range maint.Merged {
		e.publishInvalidation(ctx, id, "merge", nil, nowMs)
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, eventing.MaintenanceEvent{
			SemanticsDeleted:   report.SemanticsDeleted,
			EpisodesDeleted:    report.EpisodesDeleted,
			RawMessagesBlanked: report.RawMessagesBlanked,
			ThemesSplit:        maint.Split,
			ThemesMerged:       maint.Merged,
			Alpha:              newAlpha,
			Timestamp:          time.UnixMilli(nowMs),
		})
	}

	return report, nil
}

func (e *Engine) publishInvalidation(ctx context.Context, themeID, reason string, replaces []string, nowMs int64) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Publish(ctx, eventing.ThemeInvalidation{
		ThemeID:   themeID,
		Reason:    reason,
		Replaces:  replaces,
		Timestamp: nowMs,
	})
}

// storeAdapter implements RetrieverStore over a databases.MemoryStore,
// keeping the retriever package free of a direct persistence dependency.
type storeAdapter struct {
	store databases.MemoryStore
}

func (a *storeAdapter) TopThemesBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]Theme, error) {
	rows, err := a.store.SearchThemes(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Theme, len(rows))
	for i, r := range rows {
		out[i] = rowToTheme(r)
	}
	return out, nil
}

func (a *storeAdapter) SemanticsForThemes(ctx context.Context, themeIDs []string) ([]Semantic, error) {
	var out []Semantic
	for _, id := range themeIDs {
		rows, err := a.store.ListSemanticsByTheme(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, rowToSemantic(r))
		}
	}
	return out, nil
}

func (a *storeAdapter) EpisodesByIDs(ctx context.Context, ids []string) ([]Episode, error) {
	rows, err := a.store.GetEpisodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Episode, len(rows))
	for i, r := range rows {
		out[i] = rowToEpisode(r)
	}
	return out, nil
}

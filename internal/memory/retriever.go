package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RetrieveResult is the Top-Down Retriever's output (spec §4.4).
type RetrieveResult struct {
	Themes         []Theme
	Semantics      []Semantic
	Episodes       []Episode
	Stage2         Stage2Decision
	EstimatedTokens int
}

// RetrieverStore abstracts the vector-store lookups the retriever needs, so this package doesn't import
// the persistence layer directly (engine.go supplies the concrete
// implementations backed by databases.MemoryStore).
type RetrieverStore interface {
	TopThemesBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]Theme, error)
	SemanticsForThemes(ctx context.Context, themeIDs []string) ([]Semantic, error)
	EpisodesByIDs(ctx context.Context, ids []string) ([]Episode, error)
}

// TopDownRetriever implements the two-stage breadth-then-depth retrieval
// contract of spec §4.4.
type TopDownRetriever struct {
	store RetrieverStore
	alpha float64 // feedback-tuned, default 0.5, bounded [0.2,0.8]
}

func NewTopDownRetriever(store RetrieverStore) *TopDownRetriever {
	return &TopDownRetriever{store: store, alpha: 0.5}
}

// SetAlpha is called by the Feedback Tuner after each weekly adjustment.
func (r *TopDownRetriever) SetAlpha(a float64) {
	if a < 0.2 {
		a = 0.2
	}
	if a > 0.8 {
		a = 0.8
	}
	r.alpha = a
}

func (r *TopDownRetriever) Alpha() float64 { return r.alpha }

// Retrieve runs Stage I (breadth) then Stage II (depth) and returns a
// budgeted bundle plus the stage-II decision.
func (r *TopDownRetriever) Retrieve(ctx context.Context, summariser Summariser, queryText string, queryEmbedding []float32, tokenBudget int) (RetrieveResult, []string, error) {
	candidates, err := r.store.TopThemesBySimilarity(ctx, queryEmbedding, 5)
	if err != nil {
		return RetrieveResult{}, nil, fmt.Errorf("retrieve: stage I themes: %w", err)
	}

	selected, neighbourIDs := r.selectThemes(queryEmbedding, candidates, 3)
	if len(selected) == 0 {
		return RetrieveResult{Stage2: StageNO}, neighbourIDs, nil
	}

	themeIDs := make([]string, len(selected))
	for i, t := range selected {
		themeIDs[i] = t.ID
	}
	allFacts, err := r.store.SemanticsForThemes(ctx, themeIDs)
	if err != nil {
		return RetrieveResult{}, nil, fmt.Errorf("retrieve: stage I semantics: %w", err)
	}
	facts := rankByQuerySimilarity(allFacts, queryEmbedding, 10)

	if len(facts) == 0 {
		return RetrieveResult{Themes: selected, Stage2: StageNO}, neighbourIDs, nil
	}

	decision := r.stageTwo(ctx, summariser, queryText, facts)

	result := RetrieveResult{Themes: selected, Semantics: facts, Stage2: decision}
	if decision == StageYES {
		result.EstimatedTokens = estimateBundleTokens(selected, facts, nil)
		return result, neighbourIDs, nil
	}

	episodeIDs := uniqueEpisodeIDs(facts)
	episodes, err := r.store.EpisodesByIDs(ctx, episodeIDs)
	if err != nil {
		return RetrieveResult{}, nil, fmt.Errorf("retrieve: stage II episodes: %w", err)
	}
	episodeBudget := int(float64(tokenBudget) * 0.4)
	kept := fitEpisodesToBudget(episodes, episodeBudget)
	result.Episodes = kept
	result.EstimatedTokens = estimateBundleTokens(selected, facts, kept)
	return result, neighbourIDs, nil
}

// selectThemes greedily picks up to k themes maximising
// alpha*coverage_gain + (1-alpha)*relevance, where coverage_gain is the
// fraction of a candidate's own semantics not yet covered by already
// selected themes (the candidate's SemanticIDs that appear in no selected
// theme's SemanticIDs).
func (r *TopDownRetriever) selectThemes(queryEmbedding []float32, candidates []Theme, k int) ([]Theme, []string) {
	if len(candidates) == 0 {
		return nil, nil
	}
	relevance := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		relevance[c.ID] = cosineSimilarity(queryEmbedding, c.Embedding)
	}

	covered := map[string]bool{}
	used := make([]bool, len(candidates))
	var selected []Theme
	for len(selected) < k {
		bestIdx := -1
		bestScore := -1.0
		for i, c := range candidates {
			if used[i] {
				continue
			}
			gain := coverageGain(c, covered)
			score := r.alpha*gain + (1-r.alpha)*relevance[c.ID]
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		pick := candidates[bestIdx]
		selected = append(selected, pick)
		for _, sid := range pick.SemanticIDs {
			covered[sid] = true
		}
	}

	var neighbours []string
	for _, t := range selected {
		neighbours = append(neighbours, t.NeighborIDs...)
	}
	return selected, neighbours
}

func coverageGain(candidate Theme, covered map[string]bool) float64 {
	if len(candidate.SemanticIDs) == 0 {
		return 0
	}
	newCount := 0
	for _, id := range candidate.SemanticIDs {
		if !covered[id] {
			newCount++
		}
	}
	return float64(newCount) / float64(len(candidate.SemanticIDs))
}

func rankByQuerySimilarity(facts []Semantic, queryEmbedding []float32, limit int) []Semantic {
	type scored struct {
		f   Semantic
		sim float64
	}
	scores := make([]scored, len(facts))
	for i, f := range facts {
		scores[i] = scored{f: f, sim: cosineSimilarity(queryEmbedding, f.Embedding)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].sim != scores[j].sim {
			return scores[i].sim > scores[j].sim
		}
		return scores[i].f.ID < scores[j].f.ID
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	out := make([]Semantic, len(scores))
	for i, s := range scores {
		out[i] = s.f
	}
	return out
}

// stageTwo asks the summariser whether the surviving facts suffice. Parse
// errors or unexpected responses default to PARTIAL (spec §4.4, §7
// Parse-error).
func (r *TopDownRetriever) stageTwo(ctx context.Context, summariser Summariser, queryText string, facts []Semantic) Stage2Decision {
	if summariser == nil {
		return StagePARTIAL
	}
	var sb strings.Builder
	for _, f := range facts {
		sb.WriteString("- ")
		sb.WriteString(f.Content)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf("Given these facts:\n%s\nCan they fully answer this question? %q\nReply with exactly one word: YES, PARTIAL, or NO.", sb.String(), queryText)
	resp, err := summariser.Complete(ctx, prompt)
	if err != nil {
		return StagePARTIAL
	}
	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "YES":
		return StageYES
	case "NO":
		return StageNO
	case "PARTIAL":
		return StagePARTIAL
	default:
		return StagePARTIAL
	}
}

func uniqueEpisodeIDs(facts []Semantic) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range facts {
		for _, id := range f.SourceEpisodeIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func fitEpisodesToBudget(episodes []Episode, budget int) []Episode {
	var kept []Episode
	used := 0
	for _, ep := range episodes {
		cost := EstimateTokens(ep.Summary)
		if used+cost > budget {
			continue
		}
		kept = append(kept, ep)
		used += cost
	}
	return kept
}

func estimateBundleTokens(themes []Theme, facts []Semantic, episodes []Episode) int {
	total := 0
	total += 15 * len(themes)
	for _, f := range facts {
		total += EstimateTokens(f.Content)
	}
	for _, ep := range episodes {
		total += EstimateTokens(ep.Summary)
	}
	return total
}

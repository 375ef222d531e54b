package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Tunables from spec §4.3, with their defaults.
const (
	AssignDistanceThreshold = 0.70 // similarity gate = 1 - this
	MaxSemanticsPerTheme    = 12   // fallback split bound, <10 observations
	MinSemanticsPerTheme    = 3    // merge eligibility bound
	KNNK                    = 5
)

// tailGate is a small online sampler over observed values with a sorted
// snapshot for percentile queries, falling back to a fixed bound below a
// minimum observation count (spec §9 "distribution-aware gates").
type tailGate struct {
	samples        []float64
	pct            float64 // e.g. 0.90 for "upper 10% tail"
	fallbackBound  float64
	fallbackStrict bool // true: fallback compares with >, false: >=
	minObservations int
}

func newTailGate(pct, fallbackBound float64, fallbackStrict bool) *tailGate {
	return &tailGate{pct: pct, fallbackBound: fallbackBound, fallbackStrict: fallbackStrict, minObservations: 10}
}

func (g *tailGate) Observe(x float64) { g.samples = append(g.samples, x) }

func (g *tailGate) InUpperTail(x float64) bool {
	if len(g.samples) < g.minObservations {
		if g.fallbackStrict {
			return x > g.fallbackBound
		}
		return x >= g.fallbackBound
	}
	threshold := percentile(g.samples, g.pct)
	return x >= threshold
}

func percentile(samples []float64, pct float64) float64 {
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	if len(cp) == 0 {
		return 0
	}
	idx := int(pct * float64(len(cp)))
	if idx >= len(cp) {
		idx = len(cp) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return cp[idx]
}

// ThemeManager maintains the top tier of the hierarchy: assignment,
// split/merge with distribution-aware gates, and the k-NN theme graph.
type ThemeManager struct {
	embedder Embedder

	sizeGate *tailGate // observed theme sizes after assignment
	simGate  *tailGate // observed inter-theme centroid similarities

	assignSimilarityGate float64
}

// NewThemeManager constructs a manager with the spec's default gates.
func NewThemeManager(embedder Embedder) *ThemeManager {
	return &ThemeManager{
		embedder:             embedder,
		sizeGate:             newTailGate(0.90, MaxSemanticsPerTheme, true),
		simGate:              newTailGate(0.90, 0.80, false),
		assignSimilarityGate: 1 - AssignDistanceThreshold,
	}
}

// Assign picks the best-matching theme for fact by centroid cosine
// similarity, or signals that a new theme should be created when no theme
// clears the similarity gate. It does not mutate themes; the caller applies
// the returned decision and persists it.
type AssignDecision struct {
	ExistingThemeID string // set when fact joins an existing theme
	NewTheme        *Theme // set when no theme matched closely enough
}

func (tm *ThemeManager) Assign(ctx context.Context, summariser Summariser, fact Semantic, themes []Theme) (AssignDecision, error) {
	bestIdx := -1
	bestSim := -2.0
	for i, th := range themes {
		sim := cosineSimilarity(fact.Embedding, th.Embedding)
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}

	if bestIdx == -1 || bestSim < tm.assignSimilarityGate {
		name, err := tm.nameTheme(ctx, summariser, []string{fact.Content})
		if err != nil {
			return AssignDecision{}, err
		}
		t := &Theme{
			ID:           uuid.NewString(),
			Name:         name,
			Embedding:    append([]float32(nil), fact.Embedding...),
			SemanticIDs:  []string{fact.ID},
			MessageCount: 1,
			LastActiveMs: nowMs(),
			CreatedAtMs:  nowMs(),
		}
		return AssignDecision{NewTheme: t}, nil
	}

	chosen := themes[bestIdx]
	tm.sizeGate.Observe(float64(len(chosen.SemanticIDs) + 1))
	return AssignDecision{ExistingThemeID: chosen.ID}, nil
}

// ShouldSplit reports whether a theme of the given size should split, per
// the distribution-aware gate (falls back to MaxSemanticsPerTheme below 10
// observations).
func (tm *ThemeManager) ShouldSplit(size int) bool {
	return tm.sizeGate.InUpperTail(float64(size))
}

// ShouldMerge reports whether two themes of the given sizes and centroid
// similarity should merge.
func (tm *ThemeManager) ShouldMerge(sizeA, sizeB int, centroidSimilarity float64) bool {
	if sizeA >= MinSemanticsPerTheme || sizeB >= MinSemanticsPerTheme {
		return false
	}
	return tm.simGate.InUpperTail(centroidSimilarity)
}

// ObserveInterThemeSimilarity records a centroid-similarity sample for the
// merge gate's distribution, independent of a merge decision (called during
// k-NN recompute so the gate reflects the live graph).
func (tm *ThemeManager) ObserveInterThemeSimilarity(sim float64) {
	tm.simGate.Observe(sim)
}

// Split performs two-means (3 iterations, seeded with the first and last
// member) over theme's fact embeddings and returns two fresh themes whose
// semantic lists partition the input with no empty group. The caller is
// responsible for deleting the original theme and reparenting semantics'
// ThemeID to the returned themes.
func (tm *ThemeManager) Split(ctx context.Context, summariser Summariser, theme Theme, semantics []Semantic) (Theme, Theme, error) {
	if len(semantics) < 2 {
		return Theme{}, Theme{}, fmt.Errorf("theme split: need at least 2 semantics, got %d", len(semantics))
	}

	centerA := append([]float32(nil), semantics[0].Embedding...)
	centerB := append([]float32(nil), semantics[len(semantics)-1].Embedding...)

	var groupAIdx, groupBIdx []int
	for iter := 0; iter < 3; iter++ {
		groupAIdx, groupBIdx = groupAIdx[:0], groupBIdx[:0]
		for i, s := range semantics {
			if cosineSimilarity(s.Embedding, centerA) >= cosineSimilarity(s.Embedding, centerB) {
				groupAIdx = append(groupAIdx, i)
			} else {
				groupBIdx = append(groupBIdx, i)
			}
		}
		// Enforce non-empty groups before recomputing centers.
		if len(groupAIdx) == 0 && len(groupBIdx) > 0 {
			groupAIdx = append(groupAIdx, groupBIdx[len(groupBIdx)-1])
			groupBIdx = groupBIdx[:len(groupBIdx)-1]
		} else if len(groupBIdx) == 0 && len(groupAIdx) > 0 {
			groupBIdx = append(groupBIdx, groupAIdx[len(groupAIdx)-1])
			groupAIdx = groupAIdx[:len(groupAIdx)-1]
		}
		centerA = centroid(embeddingsOf(semantics, groupAIdx))
		centerB = centroid(embeddingsOf(semantics, groupBIdx))
	}

	namesA := contentsOf(semantics, groupAIdx)
	namesB := contentsOf(semantics, groupBIdx)
	nameA, err := tm.nameTheme(ctx, summariser, namesA)
	if err != nil {
		return Theme{}, Theme{}, err
	}
	nameB, err := tm.nameTheme(ctx, summariser, namesB)
	if err != nil {
		return Theme{}, Theme{}, err
	}

	half := theme.MessageCount / 2
	childA := Theme{
		ID:           uuid.NewString(),
		Name:         nameA,
		Embedding:    centerA,
		SemanticIDs:  idsOf(semantics, groupAIdx),
		MessageCount: theme.MessageCount - half, // ceiling
		LastActiveMs: theme.LastActiveMs,
		CreatedAtMs:  nowMs(),
	}
	childB := Theme{
		ID:           uuid.NewString(),
		Name:         nameB,
		Embedding:    centerB,
		SemanticIDs:  idsOf(semantics, groupBIdx),
		MessageCount: half, // floor
		LastActiveMs: theme.LastActiveMs,
		CreatedAtMs:  nowMs(),
	}
	return childA, childB, nil
}

// Merge keeps a's id and name, concatenates semantic lists, sums counts,
// and keeps a's centroid (the caller recomputes it lazily via
// RecomputeCentroid once semantics are reparented).
func (tm *ThemeManager) Merge(a, b Theme) Theme {
	merged := a
	merged.SemanticIDs = append(append([]string(nil), a.SemanticIDs...), b.SemanticIDs...)
	merged.MessageCount = a.MessageCount + b.MessageCount
	if b.LastActiveMs > merged.LastActiveMs {
		merged.LastActiveMs = b.LastActiveMs
	}
	return merged
}

// RecomputeCentroid recomputes a theme's centroid from its current member
// semantics' embeddings.
func RecomputeCentroid(semantics []Semantic) []float32 {
	vecs := make([][]float32, 0, len(semantics))
	for _, s := range semantics {
		if s.Embedding != nil {
			vecs = append(vecs, s.Embedding)
		}
	}
	return centroid(vecs)
}

// RecomputeKNN recomputes, for every theme, its top-K neighbour theme ids by
// centroid cosine similarity (no self-loops, descending order). It also
// feeds every observed pairwise similarity into the merge gate's
// distribution sampler.
func (tm *ThemeManager) RecomputeKNN(themes []Theme) map[string][]string {
	out := make(map[string][]string, len(themes))
	type scored struct {
		id  string
		sim float64
	}
	for i, ti := range themes {
		scores := make([]scored, 0, len(themes)-1)
		for j, tj := range themes {
			if i == j {
				continue
			}
			sim := cosineSimilarity(ti.Embedding, tj.Embedding)
			tm.ObserveInterThemeSimilarity(sim)
			scores = append(scores, scored{id: tj.ID, sim: sim})
		}
		sort.Slice(scores, func(a, b int) bool {
			if scores[a].sim != scores[b].sim {
				return scores[a].sim > scores[b].sim
			}
			return scores[a].id < scores[b].id
		})
		k := KNNK
		if k > len(scores) {
			k = len(scores)
		}
		ids := make([]string, k)
		for n := 0; n < k; n++ {
			ids[n] = scores[n].id
		}
		out[ti.ID] = ids
	}
	return out
}

// SparsityScore is N^2 / (K * sum(n_k^2) + eps), exported for observability
// (spec §4.3). High = balanced distribution of facts across themes.
func SparsityScore(themes []Theme) float64 {
	const eps = 1e-9
	var n, sumSq float64
	k := float64(len(themes))
	for _, t := range themes {
		nk := float64(len(t.SemanticIDs))
		n += nk
		sumSq += nk * nk
	}
	if k == 0 {
		return 0
	}
	return (n * n) / (k*sumSq + eps)
}

func (tm *ThemeManager) nameTheme(ctx context.Context, summariser Summariser, facts []string) (string, error) {
	if summariser == nil {
		return truncate(strings.Join(facts, " "), 50), nil
	}
	prompt := "Give a short topic label (<=50 characters) for these facts:\n" + strings.Join(facts, "\n")
	name, err := summariser.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("theme name: %w", err)
	}
	return truncate(strings.TrimSpace(name), 50), nil
}

func embeddingsOf(semantics []Semantic, idx []int) [][]float32 {
	out := make([][]float32, len(idx))
	for i, id := range idx {
		out[i] = semantics[id].Embedding
	}
	return out
}

func contentsOf(semantics []Semantic, idx []int) []string {
	out := make([]string, len(idx))
	for i, id := range idx {
		out[i] = semantics[id].Content
	}
	return out
}

func idsOf(semantics []Semantic, idx []int) []string {
	out := make([]string, len(idx))
	for i, id := range idx {
		out[i] = semantics[id].ID
	}
	return out
}

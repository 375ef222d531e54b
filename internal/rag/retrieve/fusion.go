package retrieve

import (
	"math"
	"sort"
	"strings"

	"memoryengine/internal/persistence/databases"
)

// fusedCandidate is a single workspace-grep candidate after RRF fusion of its
// full-text and vector ranks.
type fusedCandidate struct {
	ID       string
	DocID    string
	Source   string
	FtRank   int // 1-based; 0 if absent from the FTS leg
	VecRank  int // 1-based; 0 if absent from the vector leg
	FtScore  float64
	VecScore float64
	Fused    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FuseRRF performs Reciprocal Rank Fusion over the FTS and vector candidate
// lists. Weights come from opt.Alpha: wFt=Alpha, wVec=1-Alpha. opt.RRFK sets
// the denominator constant (defaults to 60, the usual RRF choice).
func FuseRRF(fts []databases.SearchResult, vec []databases.VectorResult, opt RetrieveOptions) []fusedCandidate {
	wFt := clamp01(opt.Alpha)
	wVec := 1 - wFt
	krrf := opt.RRFK
	if krrf <= 0 {
		krrf = 60
	}

	ftPos := make(map[string]int, len(fts))
	ftByID := make(map[string]databases.SearchResult, len(fts))
	for i, r := range fts {
		ftPos[r.ID] = i + 1
		ftByID[r.ID] = r
	}
	vecPos := make(map[string]int, len(vec))
	vecByID := make(map[string]databases.VectorResult, len(vec))
	for i, r := range vec {
		vecPos[r.ID] = i + 1
		vecByID[r.ID] = r
	}

	seen := make(map[string]struct{}, len(fts)+len(vec))
	ids := make([]string, 0, len(fts)+len(vec))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, r := range fts {
		add(r.ID)
	}
	for _, r := range vec {
		add(r.ID)
	}

	out := make([]fusedCandidate, 0, len(ids))
	for _, id := range ids {
		fr := ftPos[id]
		vr := vecPos[id]

		fContrib := 0.0
		if fr > 0 {
			fContrib = 1.0 / float64(krrf+fr)
		}
		vContrib := 0.0
		if vr > 0 {
			vContrib = 1.0 / float64(krrf+vr)
		}
		fused := wFt*fContrib + wVec*vContrib

		var snippet, text string
		md := map[string]string{}
		if r, ok := ftByID[id]; ok {
			snippet = r.Snippet
			text = r.Text
			for k, v := range r.Metadata {
				md[k] = v
			}
		}
		if r, ok := vecByID[id]; ok {
			for k, v := range r.Metadata {
				if _, exists := md[k]; !exists {
					md[k] = v
				}
			}
		}

		out = append(out, fusedCandidate{
			ID:       id,
			DocID:    deriveDocID(id, md),
			Source:   md["source"],
			FtRank:   fr,
			VecRank:  vr,
			FtScore:  fContrib,
			VecScore: vContrib,
			Fused:    fused,
			Snippet:  snippet,
			Text:     text,
			Metadata: md,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Fused != out[j].Fused {
			return out[i].Fused > out[j].Fused
		}
		if ri, rj := rankSum(out[i]), rankSum(out[j]); ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// rankSum gives candidates absent from a leg a large penalty rank so that
// "found by both legs" always beats "found by one leg" on tied fused scores.
func rankSum(c fusedCandidate) int {
	const absent = 1_000_000_000
	a, b := c.FtRank, c.VecRank
	if a == 0 {
		a = absent
	}
	if b == 0 {
		b = absent
	}
	return a + b
}

// Diversify re-ranks a fused list to reduce dominance by a single DocID or
// Source, applying multiplicative penalties that grow with how many items
// from that doc/source are already selected. Returns the input order
// (capped to k) when diversify is false.
func Diversify(fused []fusedCandidate, k int, diversify bool) []fusedCandidate {
	if !diversify || k <= 0 || len(fused) <= 1 {
		if k > 0 && k < len(fused) {
			return fused[:k]
		}
		return fused
	}

	const lambdaDoc = 0.75
	const lambdaSrc = 0.25
	docCount := map[string]int{}
	srcCount := map[string]int{}
	selected := make([]fusedCandidate, 0, min(k, len(fused)))
	used := make([]bool, len(fused))

	for len(selected) < k {
		bestIdx := -1
		bestAdj := -1.0
		for i, c := range fused {
			if used[i] {
				continue
			}
			denom := 1.0 + lambdaDoc*float64(docCount[c.DocID]) + lambdaSrc*float64(srcCount[c.Source])
			adj := c.Fused / denom
			if adj > bestAdj || (almostEqual(adj, bestAdj) && c.ID < fused[bestIdx].ID) {
				bestAdj = adj
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		pick := fused[bestIdx]
		selected = append(selected, pick)
		used[bestIdx] = true
		docCount[pick.DocID]++
		srcCount[pick.Source]++
		if len(selected) == len(fused) {
			break
		}
	}
	return selected
}

// FuseAndDiversify fuses, diversifies, and converts candidates to
// RetrievedItems, capped to opt.K.
func FuseAndDiversify(fts []databases.SearchResult, vec []databases.VectorResult, plan QueryPlan, opt RetrieveOptions) []RetrievedItem {
	fused := FuseRRF(fts, vec, opt)
	diversified := Diversify(fused, plan.FtK+plan.VecK, opt.Diversify)

	items := make([]RetrievedItem, 0, len(diversified))
	for _, c := range diversified {
		items = append(items, RetrievedItem{
			ID:       c.ID,
			DocID:    c.DocID,
			Score:    c.Fused,
			Snippet:  c.Snippet,
			Text:     c.Text,
			Metadata: c.Metadata,
			Explanation: map[string]any{
				"fused":    c.Fused,
				"ft_rank":  c.FtRank,
				"vec_rank": c.VecRank,
				"ft_rrf":   c.FtScore,
				"vec_rrf": c.VecScore,
			},
		})
	}

	k := opt.K
	if k <= 0 {
		k = 10
	}
	if len(items) > k {
		items = items[:k]
	}
	return items
}

// deriveDocID recovers the parent document ID from a chunk ID of the form
// "chunk:<doc-id>:<index>", preferring an explicit doc_id metadata entry,
// and otherwise treating the ID as its own document ID.
func deriveDocID(chunkID string, md map[string]string) string {
	if d := md["doc_id"]; d != "" {
		return d
	}
	if rest, ok := strings.CutPrefix(chunkID, "chunk:"); ok {
		if idx := strings.LastIndex(rest, ":"); idx != -1 {
			return rest[:idx]
		}
	}
	return chunkID
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// DeriveDocIDPublic exposes deriveDocID for other packages that need the
// same chunk-to-document mapping (e.g. workspace_search.go's snippet
// formatting).
func DeriveDocIDPublic(chunkID string, md map[string]string) string { return deriveDocID(chunkID, md) }

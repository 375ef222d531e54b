package memory

import (
	"context"
	"regexp"
	"strings"
)

// DecisionKind is the memory-edit tagged union of spec §9
// (store/retrieve/update/discard/summarize; this package only emits the
// autonomous per-turn subset: store, discard, summarize).
type DecisionKind string

const (
	DecisionStore     DecisionKind = "store"
	DecisionDiscard   DecisionKind = "discard"
	DecisionSummarize DecisionKind = "summarize"
)

// MemoryEditDecision is one autonomous memory edit the toolkit proposes.
type MemoryEditDecision struct {
	Kind         DecisionKind
	Text         string // content to store/summarize, or the correction query for discard
	Category     string
	Importance   float64
	TargetMemory string // for discard: the existing memory text matched
}

const (
	maxStorePerTurn    = 3
	storeOverlapGate   = 0.40
	minStoreLen        = 15
	maxStoreLen        = 300
	discardSharedTok   = 2
	maxDiscardPerTurn  = 2
	summarizeOverlap   = 0.30
	summarizeMinMember = 5
)

var factualMarkerRe = regexp.MustCompile(`(?i)\b(is|are|costs?|equals?|uses?|requires?|supports?|means?|was|were)\b|\d|v\d+(\.\d+)*`)

var correctionMarkerRe = regexp.MustCompile(`(?i)\b(no|wrong|incorrect)\b|不对|错了`)

var codeTokenRe = regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z0-9]*\b|\b[A-Z][a-z0-9]+[A-Z][a-zA-Z0-9]*\b`)
var versionTokenRe = regexp.MustCompile(`\bv\d+(\.\d+)*\b`)
var numberTokenRe = regexp.MustCompile(`\d`)

// MemoryToolkit emits per-turn store/discard/summarize decisions without
// further LLM calls (spec §4.5).
type MemoryToolkit struct{}

func NewMemoryToolkit() *MemoryToolkit { return &MemoryToolkit{} }

// Decide computes the full decision set for one turn. Running Decide twice
// with the same inputs yields the same decisions (pure function, no
// mutation of its arguments).
func (k *MemoryToolkit) Decide(userTurn, assistantOutput string, existingMemories []string, queryTerms []string) []MemoryEditDecision {
	var out []MemoryEditDecision
	out = append(out, k.decideStore(assistantOutput, existingMemories, queryTerms)...)
	out = append(out, k.decideDiscard(userTurn, existingMemories)...)
	if d := k.decideSummarize(existingMemories); d != nil {
		out = append(out, *d)
	}
	return out
}

func (k *MemoryToolkit) decideStore(assistantOutput string, existingMemories []string, queryTerms []string) []MemoryEditDecision {
	var out []MemoryEditDecision
	for _, sentence := range splitSentences(assistantOutput) {
		if len(out) >= maxStorePerTurn {
			break
		}
		s := strings.TrimSpace(sentence)
		n := len([]rune(s))
		if n < minStoreLen || n > maxStoreLen {
			continue
		}
		if !factualMarkerRe.MatchString(s) {
			continue
		}
		if maxOverlapAgainst(s, existingMemories) >= storeOverlapGate {
			continue
		}
		out = append(out, MemoryEditDecision{
			Kind:       DecisionStore,
			Text:       s,
			Category:   "fact",
			Importance: importanceScore(s, queryTerms),
		})
	}
	return out
}

func (k *MemoryToolkit) decideDiscard(userTurn string, existingMemories []string) []MemoryEditDecision {
	if !correctionMarkerRe.MatchString(userTurn) {
		return nil
	}
	correctionTokens := tokenSet(userTurn)
	var out []MemoryEditDecision
	for _, mem := range existingMemories {
		if len(out) >= maxDiscardPerTurn {
			break
		}
		shared := sharedTokenCount(correctionTokens, tokenSet(mem))
		if shared >= discardSharedTok {
			out = append(out, MemoryEditDecision{Kind: DecisionDiscard, Text: userTurn, TargetMemory: mem})
		}
	}
	return out
}

func (k *MemoryToolkit) decideSummarize(existingMemories []string) *MemoryEditDecision {
	if len(existingMemories) < summarizeMinMember {
		return nil
	}
	sets := make([]map[string]bool, len(existingMemories))
	for i, m := range existingMemories {
		sets[i] = tokenSet(m)
	}
	// Find the largest cluster of memories whose pairwise word overlap
	// exceeds the threshold, seeded from each memory in turn.
	var bestCluster []int
	for i := range existingMemories {
		cluster := []int{i}
		for j := range existingMemories {
			if j == i {
				continue
			}
			joins := true
			for _, m := range cluster {
				if jaccardOverlap(sets[m], sets[j]) <= summarizeOverlap {
					joins = false
					break
				}
			}
			if joins {
				cluster = append(cluster, j)
			}
		}
		if len(cluster) > len(bestCluster) {
			bestCluster = cluster
		}
	}
	if len(bestCluster) < summarizeMinMember {
		return nil
	}
	members := make([]string, len(bestCluster))
	for i, idx := range bestCluster {
		members[i] = existingMemories[idx]
	}
	return &MemoryEditDecision{
		Kind:       DecisionSummarize,
		Text:       strings.Join(members, "; "),
		Category:   "consolidated",
		Importance: 0.9,
	}
}

func importanceScore(s string, queryTerms []string) float64 {
	score := 0.0
	if numberTokenRe.MatchString(s) {
		score += 0.25
	}
	if versionTokenRe.MatchString(s) {
		score += 0.25
	}
	if len(queryTerms) > 0 {
		st := tokenSet(s)
		matched := 0
		for _, q := range queryTerms {
			if st[strings.ToLower(q)] {
				matched++
			}
		}
		score += 0.25 * (float64(matched) / float64(len(queryTerms)))
	}
	if codeTokenRe.MatchString(s) {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}
	return score
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	return fields
}

func maxOverlapAgainst(s string, existing []string) float64 {
	st := tokenSet(s)
	best := 0.0
	for _, e := range existing {
		r := tokenOverlapRatio(st, tokenSet(e))
		if r > best {
			best = r
		}
	}
	return best
}

func sharedTokenCount(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}

func jaccardOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := sharedTokenCount(a, b)
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// ApplyDecisions executes each decision against the host's optional
// callbacks. Failures are swallowed and counted, never propagated (spec
// §4.5 "failures are swallowed and counted").
func ApplyDecisions(ctx context.Context, decisions []MemoryEditDecision, cb HostCallbacks) (applied, failed int) {
	for _, d := range decisions {
		var err error
		switch d.Kind {
		case DecisionStore, DecisionSummarize:
			if cb.MemoryStore == nil {
				failed++
				continue
			}
			err = cb.MemoryStore(ctx, d.Text, d.Category, d.Importance)
		case DecisionDiscard:
			if cb.MemoryForget == nil {
				failed++
				continue
			}
			err = cb.MemoryForget(ctx, d.TargetMemory)
		}
		if err != nil {
			failed++
			continue
		}
		applied++
	}
	return applied, failed
}

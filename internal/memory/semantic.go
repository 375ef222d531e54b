package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DedupeThreshold is the default cosine-distance gate below which a
// candidate fact is considered a duplicate of an existing neighbour
// (spec §4.2).
const DedupeThreshold = 0.15

// SemanticExtractor distils an episode summary into short reusable facts
// via the summariser, deduping against existing neighbour embeddings.
type SemanticExtractor struct {
	embedder        Embedder
	dedupeThreshold float64
}

// NewSemanticExtractor constructs an extractor. threshold<=0 uses the spec
// default (0.15).
func NewSemanticExtractor(embedder Embedder, threshold float64) *SemanticExtractor {
	if threshold <= 0 {
		threshold = DedupeThreshold
	}
	return &SemanticExtractor{embedder: embedder, dedupeThreshold: threshold}
}

// Extract asks the summariser for 1-3 candidate facts from ep.Summary,
// embeds each, and drops any whose cosine distance to any member of
// neighbours (or to a fact kept earlier in the same batch) is below the
// dedupe threshold. Surviving facts carry no theme
// assignment (left to the Theme Manager) and an episode back-pointer to ep.
func (x *SemanticExtractor) Extract(ctx context.Context, summariser Summariser, ep Episode, neighbours []Semantic) ([]Semantic, error) {
	if summariser == nil {
		return nil, fmt.Errorf("semantic extract: %w", ErrHostCallbackMissing)
	}
	resp, err := summariser.Complete(ctx, buildExtractPrompt(ep.Summary))
	if err != nil {
		return nil, fmt.Errorf("semantic extract: summarise: %w", err)
	}
	candidates := parseFactLines(resp)
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	var embeddings [][]float32
	if x.embedder != nil {
		embeddings, err = x.embedder.Embed(ctx, "text-matching", candidates)
		if err != nil {
			return nil, fmt.Errorf("semantic extract: embed: %w", err)
		}
	}

	kept := make([]Semantic, 0, len(candidates))
	// Candidates must also be deduped against each other within this batch,
	// not only against pre-existing neighbours.
	pool := append([]Semantic(nil), neighbours...)
	for i, content := range candidates {
		var emb []float32
		if i < len(embeddings) {
			emb = embeddings[i]
		}
		if x.isDuplicate(emb, pool) {
			continue
		}
		sem := Semantic{
			ID:               uuid.NewString(),
			Content:          truncate(content, 200),
			Embedding:        emb,
			SourceEpisodeIDs: []string{ep.ID},
			CreatedAtMs:      nowMs(),
			UpdatedAtMs:      nowMs(),
		}
		kept = append(kept, sem)
		pool = append(pool, sem)
	}
	return kept, nil
}

func (x *SemanticExtractor) isDuplicate(emb []float32, neighbours []Semantic) bool {
	if emb == nil {
		return false
	}
	for _, n := range neighbours {
		if n.Embedding == nil {
			continue
		}
		if cosineDistance(emb, n.Embedding) < x.dedupeThreshold {
			return true
		}
	}
	return false
}

func buildExtractPrompt(summary string) string {
	var sb strings.Builder
	sb.WriteString("Extract 1 to 3 short, reusable facts from the following summary. ")
	sb.WriteString("Do not include greetings or process chatter (e.g. 'the user asked', 'discussed'). ")
	sb.WriteString("Reply with exactly one fact per line, in the same language as the input.\n\n")
	sb.WriteString(summary)
	return sb.String()
}

// greetingOrChatterPrefixes matches lines that are process narration rather than
// facts, filtered out defensively in case the summariser ignores the
// instruction.
var greetingOrChatterPrefixes = []string{
	"hello", "hi there", "the user asked", "discussed", "talked about",
	"你好", "讨论了", "用户询问",
}

func parseFactLines(resp string) []string {
	lines := strings.Split(resp, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "-")
		l = strings.TrimPrefix(l, "*")
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lower := strings.ToLower(l)
		skip := false
		for _, p := range greetingOrChatterPrefixes {
			if strings.HasPrefix(lower, p) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out = append(out, l)
	}
	return out
}

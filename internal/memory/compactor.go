package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Size-ladder thresholds (in estimated tokens) from spec §4.8.
const (
	stripThreshold     = 200
	truncateThreshold  = 500
	semanticThreshold  = 800
	summarizeThreshold = 1500
)

// CompactStrategy names which rung of the ladder produced a compaction.
type CompactStrategy string

const (
	StrategyPassthrough CompactStrategy = "passthrough"
	StrategyStrip       CompactStrategy = "strip"
	StrategyTruncate    CompactStrategy = "truncate"
	StrategySemantic    CompactStrategy = "semantic"
	StrategySummarize   CompactStrategy = "summarize"
)

// OutputCompactor compresses individual tool outputs before they re-enter
// the prompt (spec §4.8).
type OutputCompactor struct{}

func NewOutputCompactor() *OutputCompactor { return &OutputCompactor{} }

// Compact applies the five-strategy ladder and returns the compacted text
// alongside which strategy fired.
func (c *OutputCompactor) Compact(ctx context.Context, summariser Summariser, text string) (string, CompactStrategy, error) {
	tokens := EstimateTokens(text)
	switch {
	case tokens <= stripThreshold:
		return text, StrategyPassthrough, nil
	case tokens <= truncateThreshold:
		return stripNoise(text), StrategyStrip, nil
	case tokens <= semanticThreshold:
		return truncateWithMarker(text, truncateThreshold), StrategyTruncate, nil
	case tokens <= summarizeThreshold:
		semantic := extractSemanticSummary(text)
		trunc := truncateWithMarker(text, semanticThreshold)
		if EstimateTokens(semantic) < EstimateTokens(trunc) {
			return semantic, StrategySemantic, nil
		}
		return trunc, StrategyTruncate, nil
	default:
		if summariser == nil {
			return truncateWithMarker(text, summarizeThreshold), StrategyTruncate, nil
		}
		out, err := c.summarizeHeadTail(ctx, summariser, text)
		if err != nil {
			return truncateWithMarker(text, summarizeThreshold), StrategyTruncate, nil
		}
		return out, StrategySummarize, nil
	}
}

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	imageSynRe  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	adNavRe     = regexp.MustCompile(`(?i)\b(advertisement|sponsored|cookie notice|navigation menu|skip to content)\b`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

func stripNoise(text string) string {
	out := htmlTagRe.ReplaceAllString(text, "")
	out = imageSynRe.ReplaceAllString(out, "")
	out = adNavRe.ReplaceAllString(out, "")
	out = whitespaceRe.ReplaceAllString(out, " ")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func truncateWithMarker(text string, maxTokens int) string {
	lines := strings.Split(text, "\n")
	var kept []string
	used := 0
	omittedTokens := 0
	for _, l := range lines {
		cost := EstimateTokens(l)
		if used+cost > maxTokens {
			omittedTokens += cost
			continue
		}
		kept = append(kept, l)
		used += cost
	}
	if omittedTokens == 0 {
		return strings.Join(kept, "\n")
	}
	return fmt.Sprintf("%s\n[truncated, %d tokens omitted]", strings.Join(kept, "\n"), omittedTokens)
}

var (
	numberRe    = regexp.MustCompile(`\b\d+(\.\d+)?%?\b`)
	entityRe    = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]+(?:\s[A-Z][a-zA-Z0-9]+)*\b`)
	actionVerbs = regexp.MustCompile(`(?i)\b(created|updated|deleted|fixed|added|removed|changed|decided|planned)\b[^.\n]*`)
)

// extractSemanticSummary pulls key facts, entities, actions and numbers out
// of text via regex into a structured multi-line summary, used when it
// comes out shorter than truncation (spec §4.8 "semantic" strategy).
func extractSemanticSummary(text string) string {
	var sb strings.Builder
	if nums := dedupeStrings(numberRe.FindAllString(text, -1)); len(nums) > 0 {
		sb.WriteString("numbers: ")
		sb.WriteString(strings.Join(capAt(nums, 10), ", "))
		sb.WriteString("\n")
	}
	if entities := dedupeStrings(entityRe.FindAllString(text, -1)); len(entities) > 0 {
		sb.WriteString("entities: ")
		sb.WriteString(strings.Join(capAt(entities, 10), ", "))
		sb.WriteString("\n")
	}
	if actions := dedupeStrings(actionVerbs.FindAllString(text, -1)); len(actions) > 0 {
		sb.WriteString("actions:\n")
		for _, a := range capAt(actions, 5) {
			sb.WriteString("- ")
			sb.WriteString(strings.TrimSpace(a))
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func capAt(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

// summarizeHeadTail asks the summariser to compress text, providing head and
// tail context so important boundary information isn't lost.
func (c *OutputCompactor) summarizeHeadTail(ctx context.Context, summariser Summariser, text string) (string, error) {
	r := []rune(text)
	headN, tailN := 800, 800
	var head, tail string
	if len(r) > headN+tailN {
		head = string(r[:headN])
		tail = string(r[len(r)-tailN:])
	} else {
		head = text
	}
	prompt := "Summarise the following tool output concisely, preserving key facts, numbers and decisions.\n\nBEGINNING:\n" + head
	if tail != "" {
		prompt += "\n\nEND:\n" + tail
	}
	out, err := summariser.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("compact: summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

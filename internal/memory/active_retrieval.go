package memory

import (
	"context"
	"regexp"
	"strings"
)

// UncertaintyLevel is the confidence signal derived from the last assistant
// message (spec §4.5).
type UncertaintyLevel string

const (
	UncertaintyNone   UncertaintyLevel = "none"
	UncertaintyLow    UncertaintyLevel = "low"
	UncertaintyMedium UncertaintyLevel = "medium"
	UncertaintyHigh   UncertaintyLevel = "high"
)

var hedgeMarkers = []string{
	"i think", "maybe", "i'm not sure", "i am not sure", "probably", "might be",
	"可能", "不确定", "也许",
}

var importantPattern = regexp.MustCompile(`(?i)\$\d|\bprice\b|\bcost\b|\bversion\b|\bv\d+(\.\d+)*\b|\b(19|20)\d{2}\b|\bdate\b|\bwhen\b|\bhow much\b`)

// CountHedgeMarkers returns how many distinct hedge markers appear in text.
func CountHedgeMarkers(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, m := range hedgeMarkers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

// IsImportantQuestion reports whether the user's question touches prices,
// versions, dates, or other factuality-sensitive territory.
func IsImportantQuestion(question string) bool {
	return importantPattern.MatchString(question)
}

// ClassifyUncertainty applies the rules of spec §4.5: marker count and
// importance determine the base level; a repeated question (>=60% token
// overlap with any of the last three queries) promotes the level to at
// least medium.
func ClassifyUncertainty(assistantAnswer, userQuestion string, recentQueries []string) UncertaintyLevel {
	markers := CountHedgeMarkers(assistantAnswer)
	important := IsImportantQuestion(userQuestion)

	var level UncertaintyLevel
	switch {
	case markers == 0:
		level = UncertaintyNone
	case markers == 1 && !important:
		level = UncertaintyLow
	case (markers == 1 && important) || markers == 2:
		level = UncertaintyMedium
	default:
		level = UncertaintyHigh
	}

	if isRepeatedQuestion(userQuestion, recentQueries) && (level == UncertaintyNone || level == UncertaintyLow) {
		level = UncertaintyMedium
	}
	return level
}

func isRepeatedQuestion(q string, recent []string) bool {
	qTokens := tokenSet(q)
	if len(qTokens) == 0 {
		return false
	}
	n := len(recent)
	if n > 3 {
		recent = recent[n-3:]
	}
	for _, r := range recent {
		if tokenOverlapRatio(qTokens, tokenSet(r)) >= 0.6 {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = true
		// CJK text carries no word-separating spaces, so whitespace
		// splitting alone collapses a whole clause into one token; also
		// index individual CJK runes so overlap comparisons are meaningful.
		for _, r := range f {
			if isCJK(r) {
				out[string(r)] = true
			}
		}
	}
	return out
}

// tokenOverlapRatio is |a n b| / |a|, i.e. what fraction of a's tokens also
// appear in b.
func tokenOverlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

// RetrievalResult is what the Active Retrieval chain found, and from which
// source.
type RetrievalResult struct {
	Source   string // "memory", "workspace", "web", or "" if nothing found
	Snippets []string
	Verified bool
}

// RunActiveRetrieval executes the retrieval chain (spec §4.5): existing
// memory recall, then workspace grep, then web search (gated to >=medium),
// stopping at the first non-empty result. none and low-without-importance
// skip entirely.
func RunActiveRetrieval(ctx context.Context, level UncertaintyLevel, query, assistantAnswer string, cb HostCallbacks) (RetrievalResult, error) {
	if level == UncertaintyNone || level == UncertaintyLow {
		return RetrievalResult{}, nil
	}

	if cb.hasMemoryRecall() {
		hits, err := cb.MemoryRecall(ctx, query)
		if err == nil && len(hits) > 0 {
			return RetrievalResult{Source: "memory", Snippets: hits}, nil
		}
	}

	if cb.hasWorkspaceGrep() {
		hits, err := cb.WorkspaceGrep(ctx, query)
		if err == nil && len(hits) > 0 {
			return RetrievalResult{Source: "workspace", Snippets: hits}, nil
		}
	}

	if (level == UncertaintyMedium || level == UncertaintyHigh) && cb.hasWebSearch() {
		hits, err := cb.WebSearch(ctx, query)
		if err != nil || len(hits) == 0 {
			return RetrievalResult{}, nil
		}
		verified, proposed := crossVerify(assistantAnswer, hits)
		return RetrievalResult{Source: "web", Snippets: proposed, Verified: verified}, nil
	}

	return RetrievalResult{}, nil
}

var properNounOrNumberRe = regexp.MustCompile(`\$?\d[\d,.]*%?|\b[A-Z][a-zA-Z]+\b`)

// crossVerify extracts proper-noun/number tokens from the assistant's
// answer and requires at least 30% of them to appear in the joined web
// text before marking the result verified (spec §4.5).
func crossVerify(assistantAnswer string, webHits []string) (bool, []string) {
	tokens := dedupeStrings(properNounOrNumberRe.FindAllString(assistantAnswer, -1))
	if len(tokens) == 0 {
		return false, capAt(webHits, 3)
	}
	joined := strings.Join(webHits, " \n ")
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(joined, tok) {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(tokens))
	verified := ratio >= 0.30
	return verified, capAt(webHits, 3)
}

package memory

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	maxGapDays           = 3
	durativeSimThreshold = 0.6
	dayMs                = int64(24 * time.Hour / time.Millisecond)
)

// TemporalRange is a resolved [start, end] window in epoch milliseconds.
type TemporalRange struct {
	IsTemporal bool
	StartMs    int64
	EndMs      int64
}

type relativeExpr struct {
	re     *regexp.Regexp
	resolve func(ref time.Time) (start, end time.Time)
}

var relativeExprs = buildRelativeExprs()

func buildRelativeExprs() []relativeExpr {
	day := func(offset int) func(ref time.Time) (time.Time, time.Time) {
		return func(ref time.Time) (time.Time, time.Time) {
			d := ref.AddDate(0, 0, offset)
			start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
			return start, start.AddDate(0, 0, 1)
		}
	}
	week := func(offset int) func(ref time.Time) (time.Time, time.Time) {
		return func(ref time.Time) (time.Time, time.Time) {
			d := ref.AddDate(0, 0, offset*7)
			// Local-midnight of the computed date (SPEC_FULL supplemental
			// feature / spec §9 Open Question d), rather than leaving
			// time-of-day untouched.
			start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
			return start, start.AddDate(0, 0, 7)
		}
	}
	return []relativeExpr{
		{regexp.MustCompile(`(?i)\byesterday\b|昨天`), func(ref time.Time) (time.Time, time.Time) { return day(-1)(ref) }},
		{regexp.MustCompile(`(?i)\btoday\b|今天`), func(ref time.Time) (time.Time, time.Time) { return day(0)(ref) }},
		{regexp.MustCompile(`(?i)\blast week\b|上周|上星期`), func(ref time.Time) (time.Time, time.Time) { return week(-1)(ref) }},
		{regexp.MustCompile(`(?i)\bthis week\b|本周|这周`), func(ref time.Time) (time.Time, time.Time) {
			d := ref
			offset := int(d.Weekday())
			if offset == 0 {
				offset = 7 // treat Sunday as end of week, matching Mon-start ISO weeks
			}
			start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()).AddDate(0, 0, -(offset - 1))
			return start, start.AddDate(0, 0, 7)
		}},
		{regexp.MustCompile(`(?i)\brecently\b|最近`), func(ref time.Time) (time.Time, time.Time) { return ref.AddDate(0, 0, -7), ref }},
	}
}

var nDaysAgoRe = regexp.MustCompile(`(?i)(\d+)\s*days?\s*ago|(\d+)\s*天前`)

// ParseRelative resolves a relative-time expression in q against ref. A
// query with no recognised expression returns IsTemporal=false.
func ParseRelative(q string, ref time.Time) TemporalRange {
	if m := nDaysAgoRe.FindStringSubmatch(q); m != nil {
		numStr := m[1]
		if numStr == "" {
			numStr = m[2]
		}
		n, err := strconv.Atoi(numStr)
		if err == nil {
			d := ref.AddDate(0, 0, -n)
			start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
			return TemporalRange{IsTemporal: true, StartMs: start.UnixMilli(), EndMs: start.AddDate(0, 0, 1).UnixMilli()}
		}
	}
	for _, ex := range relativeExprs {
		if ex.re.MatchString(q) {
			start, end := ex.resolve(ref)
			return TemporalRange{IsTemporal: true, StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}
		}
	}
	return TemporalRange{IsTemporal: false}
}

var isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
var cnDateRe = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)

// SemanticTimeExtract derives (semantic_time, duration) for dialogueTime
// using the heuristic ladder from spec §4.6: absolute dates first, then
// yesterday/last-week phrasing, else falls back to dialogue time with zero
// duration.
func SemanticTimeExtract(text string, dialogueTime time.Time) (semanticTime time.Time, durationMs int64) {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, dialogueTime.Location()), 0
	}
	if m := cnDateRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, dialogueTime.Location()), 0
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "yesterday") || strings.Contains(text, "昨天") {
		return dialogueTime.AddDate(0, 0, -1), 0
	}
	if strings.Contains(lower, "last week") || strings.Contains(text, "上周") {
		return dialogueTime.AddDate(0, 0, -7), 7 * dayMs
	}
	return dialogueTime, 0
}

// llmDateResponse is the JSON shape the LLM-based fallback extractor must
// return (spec §4.6). Invalid JSON or an unparseable date falls through to
// the heuristic.
type llmDateResponse struct {
	Date         string `json:"date"`
	DurationDays int    `json:"duration_days"`
}

// SemanticTimeExtractWithLLM tries the heuristic first; only on a non-match
// (heuristic degenerating to dialogue time) does it consult llmComplete, per
// spec "heuristic first ... LLM-based extractor is available as a fallback".
func SemanticTimeExtractWithLLM(ctx context.Context, summariser Summariser, text string, dialogueTime time.Time) (time.Time, int64) {
	t, dur := SemanticTimeExtract(text, dialogueTime)
	if !t.Equal(dialogueTime) || dur != 0 {
		return t, dur
	}
	if summariser == nil {
		return t, dur
	}
	resp, err := summariser.Complete(ctx, `Extract the date this text refers to. Reply with JSON only: {"date":"YYYY-MM-DD","duration_days":N}.`+"\n\n"+text)
	if err != nil {
		return t, dur
	}
	var parsed llmDateResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &parsed); err != nil {
		return t, dur
	}
	parsedTime, err := time.Parse("2006-01-02", parsed.Date)
	if err != nil {
		return t, dur
	}
	return parsedTime, int64(parsed.DurationDays) * dayMs
}

// BuildDurativeMemories sorts events by semantic time and greedily groups
// temporally-close, semantically-similar events into durative memories
// (spec §4.6). A group is emitted only when it has more than one member, or
// the seed itself already carries non-zero duration.
func BuildDurativeMemories(events []TemporalEvent) []DurativeMemory {
	if len(events) == 0 {
		return nil
	}
	sorted := append([]TemporalEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SemanticTimeMs < sorted[j].SemanticTimeMs })

	var out []DurativeMemory
	i := 0
	for i < len(sorted) {
		seed := sorted[i]
		members := []TemporalEvent{seed}
		groupEnd := seed.SemanticTimeMs + seed.DurationMs
		j := i + 1
		for j < len(sorted) {
			cand := sorted[j]
			gapDays := float64(cand.SemanticTimeMs-groupEnd) / float64(dayMs)
			if gapDays > maxGapDays {
				break
			}
			if cosineSimilarity(cand.Embedding, seed.Embedding) < durativeSimThreshold {
				j++
				continue
			}
			members = append(members, cand)
			if cand.SemanticTimeMs+cand.DurationMs > groupEnd {
				groupEnd = cand.SemanticTimeMs + cand.DurationMs
			}
			j++
		}
		if len(members) > 1 || seed.DurationMs > 0 {
			out = append(out, newDurativeMemory(members))
		}
		if len(members) > 1 {
			i += len(members)
		} else {
			i++
		}
	}
	return out
}

func newDurativeMemory(members []TemporalEvent) DurativeMemory {
	ids := make([]string, len(members))
	var minStart, maxEnd int64 = members[0].SemanticTimeMs, members[0].SemanticTimeMs + members[0].DurationMs
	vecs := make([][]float32, 0, len(members))
	var sb strings.Builder
	for i, m := range members {
		ids[i] = m.ID
		if m.SemanticTimeMs < minStart {
			minStart = m.SemanticTimeMs
		}
		if end := m.SemanticTimeMs + m.DurationMs; end > maxEnd {
			maxEnd = end
		}
		if m.Embedding != nil {
			vecs = append(vecs, m.Embedding)
		}
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(m.Content)
	}
	return DurativeMemory{
		Summary:   truncate(sb.String(), 300),
		StartMs:   minStart,
		EndMs:     maxEnd,
		MemberIDs: ids,
		Embedding: centroid(vecs),
	}
}

// RerankTemporal scores episodes by their associated temporal events falling
// within [start,end], or by proximity to the range centre otherwise,
// dropping anything scoring below 0.1 (spec §4.6). Without any temporal
// events for an episode, callers should fall back to created_at filtering.
func RerankTemporal(episodeIDs []string, eventsByEpisode map[string][]TemporalEvent, rng TemporalRange) []string {
	centre := (rng.StartMs + rng.EndMs) / 2
	halfSpan := float64(rng.EndMs-rng.StartMs) / 2
	if halfSpan <= 0 {
		halfSpan = float64(dayMs)
	}
	type scored struct {
		id    string
		score float64
	}
	out := make([]scored, 0, len(episodeIDs))
	for _, id := range episodeIDs {
		events := eventsByEpisode[id]
		best := 0.0
		for _, ev := range events {
			if ev.SemanticTimeMs >= rng.StartMs && ev.SemanticTimeMs <= rng.EndMs {
				best = 1
				break
			}
			dist := float64(abs64(ev.SemanticTimeMs - centre))
			score := 1 - dist/(halfSpan*4)
			if score > best {
				best = score
			}
		}
		if best >= 0.1 {
			out = append(out, scored{id: id, score: best})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	ids := make([]string, len(out))
	for i, s := range out {
		ids[i] = s.id
	}
	return ids
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

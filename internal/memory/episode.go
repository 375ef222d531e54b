package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// topicSwitchMarkers are explicit topic-change markers the Episode Builder
// watches for between the incoming message and the one before it (spec
// §4.1). Matching is case-insensitive and substring based; plain
// continuation ("and then what happened") must not false-positive, so the
// list only holds phrases that are themselves topic-change idioms.
var topicSwitchMarkers = []string{
	"by the way",
	"another question",
	"unrelated question",
	"changing the subject",
	"switching topics",
	"另外",
	"换个话题",
	"换个话题说",
}

// EpisodeBuilder accumulates Messages and emits Episode records on batch,
// flush, or topic switch (spec §4.1).
type EpisodeBuilder struct {
	sessionID string
	batchSize int
	embedder  Embedder

	buf       []Message
	turnBase  int // turn index of buf[0], monotonic across the session
	turnCur   int // next turn index to assign
}

// NewEpisodeBuilder constructs a builder for one session. batchSize<=0 uses
// the spec default of 5.
func NewEpisodeBuilder(sessionID string, batchSize int, embedder Embedder) *EpisodeBuilder {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &EpisodeBuilder{sessionID: sessionID, batchSize: batchSize, embedder: embedder}
}

// TopicSwitch reports whether cur opens a new topic relative to prev.
func TopicSwitch(cur, prev Message) bool {
	if prev.Text == "" {
		return false
	}
	lower := strings.ToLower(cur.Text)
	for _, m := range topicSwitchMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Add appends message to the buffer in O(1) and reports whether a batch is
// now ready to flush (buffer full or a topic switch was detected against
// the prior message). On topic switch with a non-empty buffer, the caller
// is expected to Flush immediately and then call Add again for the
// switching message — Add performs that rotation itself and returns the
// episode produced by the pre-switch flush, if any, alongside readiness.
func (b *EpisodeBuilder) Add(ctx context.Context, summariser Summariser, msg Message) (*Episode, bool, error) {
	var prior Message
	if n := len(b.buf); n > 0 {
		prior = b.buf[n-1]
	}
	switched := TopicSwitch(msg, prior)

	if switched && len(b.buf) > 0 {
		ep, err := b.Flush(ctx, summariser)
		if err != nil {
			return nil, false, err
		}
		b.buf = append(b.buf, msg)
		b.turnCur++
		return ep, false, nil
	}

	b.buf = append(b.buf, msg)
	b.turnCur++
	ready := len(b.buf) >= b.batchSize
	return nil, ready, nil
}

// Flush summarises the buffered messages, embeds the summary, and emits the
// Episode. Returns nil, nil if the buffer is empty. Any summariser or
// embedding error is propagated and no partial episode is persisted — the
// buffer is left untouched so the caller can retry.
func (b *EpisodeBuilder) Flush(ctx context.Context, summariser Summariser) (*Episode, error) {
	if len(b.buf) == 0 {
		return nil, nil
	}
	if summariser == nil {
		return nil, fmt.Errorf("episode flush: %w", ErrHostCallbackMissing)
	}

	prompt := buildFlushPrompt(b.buf)
	summary, err := summariser.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("episode flush: summarise: %w", err)
	}
	summary = strings.TrimSpace(summary)

	var embedding []float32
	if b.embedder != nil {
		vecs, err := b.embedder.Embed(ctx, "text-matching", []string{summary})
		if err != nil {
			return nil, fmt.Errorf("episode flush: embed: %w", err)
		}
		if len(vecs) > 0 {
			embedding = vecs[0]
		}
	}

	raw := make([]RawMessage, len(b.buf))
	for i, m := range b.buf {
		raw[i] = RawMessage{Role: m.Role, Text: truncate(m.Text, 500)}
	}

	turnStart := b.turnCur - len(b.buf)
	ep := &Episode{
		ID:           uuid.NewString(),
		Summary:      summary,
		TurnStart:    turnStart,
		TurnEnd:      b.turnCur - 1,
		MessageCount: len(b.buf),
		SessionID:    b.sessionID,
		CreatedAtMs:  nowMs(),
		Embedding:    embedding,
		RawMessages:  raw,
	}
	b.buf = b.buf[:0]
	return ep, nil
}

// Pending reports the number of buffered, not-yet-flushed messages.
func (b *EpisodeBuilder) Pending() int { return len(b.buf) }

func buildFlushPrompt(msgs []Message) string {
	var sb strings.Builder
	sb.WriteString("Summarise the following exchange in 50-100 tokens. Capture what was discussed, key decisions, and planned actions. Reply in the same language as the input.\n\n")
	for _, m := range msgs {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// nowMs is the engine's single source of wall-clock time, isolated here so
// tests can't drift between callers.
func nowMs() int64 { return time.Now().UnixMilli() }

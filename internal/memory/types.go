// Package memory implements the hierarchical conversational-memory engine:
// messages are buffered into episodes, episodes are distilled into semantic
// facts, facts are clustered into themes, and a two-stage retriever turns a
// query into a token-budgeted context bundle. See engine.go for the hook
// surface a host agent calls into.
package memory

import (
	"encoding/json"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn fed into the Episode Builder. It is transient:
// the engine never persists messages directly, only the episodes they're
// folded into.
type Message struct {
	Role      Role
	Text      string
	Timestamp int64 // ms since epoch
}

// Episode summarises a short contiguous batch of messages.
type Episode struct {
	ID           string
	Summary      string // <=100 tokens
	TurnStart    int
	TurnEnd      int
	MessageCount int
	SessionID    string
	CreatedAtMs  int64
	Embedding    []float32
	RawMessages  []RawMessage // stripped to nil after messageRetainDays
}

// RawMessage is one message body retained alongside an Episode, truncated to
// 500 chars per spec.
type RawMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Semantic is a short reusable fact distilled from one or more episodes.
type Semantic struct {
	ID               string
	Content          string // <=200 chars
	Embedding        []float32
	ThemeID          string
	SourceEpisodeIDs []string
	NeighborIDs      []string
	CreatedAtMs      int64
	UpdatedAtMs      int64
}

// Theme is a cluster of semantically related facts.
type Theme struct {
	ID           string
	Name         string // <=50 chars
	Summary      string
	Embedding    []float32 // centroid
	SemanticIDs  []string
	NeighborIDs  []string
	MessageCount int
	LastActiveMs int64
	CreatedAtMs  int64
}

// UserProfile is the latest-per-(user, phase) behavioural/cognitive summary.
type UserProfile struct {
	ID           string
	UserID       string
	Phase        string // ISO-week label
	Behavioral   string
	Cognitive    string
	MergedGlobal string
	Embedding    []float32
	UpdatedAtMs  int64
}

// TemporalEvent shadows an Episode, indexed by when it happened rather than
// when it was discussed.
type TemporalEvent struct {
	ID             string // = episode id
	Content        string
	SemanticTimeMs int64
	DialogueTimeMs int64
	DurationMs     int64
	SourceEpisode  string
	Embedding      []float32
}

// DurativeMemory is a span-valued memory derived from a cluster of
// temporally-close, semantically-related TemporalEvents.
type DurativeMemory struct {
	ID          string
	Summary     string
	StartMs     int64
	EndMs       int64
	MemberIDs   []string
	ThemeTag    string
	Embedding   []float32
}

// Stage2Decision is the Top-Down Retriever's depth-expansion verdict.
type Stage2Decision string

const (
	StageYES     Stage2Decision = "YES"
	StagePARTIAL Stage2Decision = "PARTIAL"
	StageNO      Stage2Decision = "NO"
)

// Satisfaction labels an ObservabilityTrace once the next query arrives (or
// doesn't, within the 60s window).
type Satisfaction string

const (
	SatisfiedYes     Satisfaction = "satisfied"
	SatisfiedNo      Satisfaction = "unsatisfied"
	SatisfiedUnknown Satisfaction = "unknown"
)

// ObservabilityTrace records one retrieval call for the Feedback Tuner and
// hit-rate reporting.
type ObservabilityTrace struct {
	Query            string
	TimestampMs      int64
	MatchedThemes    []string
	SelectedFacts    []string // previews
	ExpandedEpisodes []string
	Stage2           Stage2Decision
	TokensInjected   int
	Satisfaction     Satisfaction
	AgentID          string
}

// encodeIDs / decodeIDs implement the opaque-string codec the vector-store
// port requires for list-valued columns (spec §6).
func encodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func encodeRawMessages(msgs []RawMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	b, _ := json.Marshal(msgs)
	return string(b)
}

func decodeRawMessages(s string) []RawMessage {
	if s == "" {
		return nil
	}
	var out []RawMessage
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

package databases

import (
	"context"
)

// ThemeRow, SemanticRow, EpisodeRow and UserProfileRow are the wire shapes for
// the four tables spec'd for the vector-store port (themes, semantics,
// episodes, user_profile). List-valued fields (SemanticIDs, NeighborIDs,
// SourceEpisodeIDs) are carried as opaque strings at this boundary, the same
// way the teacher's SearchResult/VectorResult metadata maps carry only
// strings — callers own the list<->string codec (see internal/memory/codec.go).
type ThemeRow struct {
	ID            string
	Name          string
	Summary       string
	Embedding     []float32
	SemanticIDs   string // JSON-encoded []string
	NeighborIDs   string // JSON-encoded []string
	MessageCount  int
	LastActiveMs  int64
	CreatedAtMs   int64
}

type SemanticRow struct {
	ID               string
	Content          string
	Embedding        []float32
	ThemeID          string
	SourceEpisodeIDs string // JSON-encoded []string
	NeighborIDs      string // JSON-encoded []string
	CreatedAtMs      int64
	UpdatedAtMs      int64
}

type EpisodeRow struct {
	ID           string
	Summary      string
	Embedding    []float32
	SessionID    string
	TurnStart    int
	TurnEnd      int
	MessageCount int
	RawMessages  string // opaque bounded blob; blanked to "" on decay
	CreatedAtMs  int64
}

type UserProfileRow struct {
	ID             string
	UserID         string
	Phase          string // ISO-week label
	Behavioral     string
	Cognitive      string
	MergedGlobal   string
	Embedding      []float32
	UpdatedAtMs    int64
}

// ScanPage is one page of an explicit full-table scan, used by the Decay
// Manager sweep instead of the zero-vector proxy-query pattern the source
// mixed in with real similarity search (spec §9 Open Question a).
type ScanPage[T any] struct {
	Rows       []T
	NextOffset int
	Done       bool
}

// MemoryStore is the vector-store port spec'd in §6: four tables backing the
// hierarchical memory (themes, semantics, episodes, user_profile), each
// supporting add/update/delete/filter plus vector search. Two backends are
// provided: PostgresMemoryStore (pgx + pgvector) and InMemoryMemoryStore
// (tests, zero-dependency embedding), mirroring the teacher's
// VectorStore/memory_vector.go split.
type MemoryStore interface {
	Init(ctx context.Context) error

	UpsertTheme(ctx context.Context, t ThemeRow) error
	GetTheme(ctx context.Context, id string) (ThemeRow, bool, error)
	DeleteTheme(ctx context.Context, id string) error
	ListThemes(ctx context.Context) ([]ThemeRow, error)
	SearchThemes(ctx context.Context, vector []float32, k int) ([]ThemeRow, error)
	ScanThemes(ctx context.Context, offset, pageSize int) (ScanPage[ThemeRow], error)

	UpsertSemantic(ctx context.Context, s SemanticRow) error
	GetSemantic(ctx context.Context, id string) (SemanticRow, bool, error)
	DeleteSemantic(ctx context.Context, id string) error
	ListSemanticsByTheme(ctx context.Context, themeID string) ([]SemanticRow, error)
	SearchSemantics(ctx context.Context, vector []float32, k int) ([]SemanticRow, error)
	ScanSemantics(ctx context.Context, offset, pageSize int) (ScanPage[SemanticRow], error)

	UpsertEpisode(ctx context.Context, e EpisodeRow) error
	GetEpisode(ctx context.Context, id string) (EpisodeRow, bool, error)
	GetEpisodes(ctx context.Context, ids []string) ([]EpisodeRow, error)
	DeleteEpisode(ctx context.Context, id string) error
	BlankRawMessages(ctx context.Context, id string) error
	ScanEpisodes(ctx context.Context, offset, pageSize int) (ScanPage[EpisodeRow], error)

	UpsertUserProfile(ctx context.Context, p UserProfileRow) error
	GetLatestUserProfile(ctx context.Context, userID string) (UserProfileRow, bool, error)
	ListUserProfiles(ctx context.Context, userID string) ([]UserProfileRow, error)

	CountRows(ctx context.Context, table string) (int, error)
}

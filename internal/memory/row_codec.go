package memory

import "memoryengine/internal/persistence/databases"

// themeToRow / rowToTheme, semanticToRow / rowToSemantic and
// episodeToRow / rowToEpisode translate between the domain structs this
// package operates on and the opaque-string wire rows the MemoryStore port
// persists (spec §6).

func themeToRow(t Theme) databases.ThemeRow {
	return databases.ThemeRow{
		ID:           t.ID,
		Name:         t.Name,
		Summary:      t.Summary,
		Embedding:    t.Embedding,
		SemanticIDs:  encodeIDs(t.SemanticIDs),
		NeighborIDs:  encodeIDs(t.NeighborIDs),
		MessageCount: t.MessageCount,
		LastActiveMs: t.LastActiveMs,
		CreatedAtMs:  t.CreatedAtMs,
	}
}

func rowToTheme(r databases.ThemeRow) Theme {
	return Theme{
		ID:           r.ID,
		Name:         r.Name,
		Summary:      r.Summary,
		Embedding:    r.Embedding,
		SemanticIDs:  decodeIDs(r.SemanticIDs),
		NeighborIDs:  decodeIDs(r.NeighborIDs),
		MessageCount: r.MessageCount,
		LastActiveMs: r.LastActiveMs,
		CreatedAtMs:  r.CreatedAtMs,
	}
}

func semanticToRow(s Semantic) databases.SemanticRow {
	return databases.SemanticRow{
		ID:               s.ID,
		Content:          s.Content,
		Embedding:        s.Embedding,
		ThemeID:          s.ThemeID,
		SourceEpisodeIDs: encodeIDs(s.SourceEpisodeIDs),
		NeighborIDs:      encodeIDs(s.NeighborIDs),
		CreatedAtMs:      s.CreatedAtMs,
		UpdatedAtMs:      s.UpdatedAtMs,
	}
}

func rowToSemantic(r databases.SemanticRow) Semantic {
	return Semantic{
		ID:               r.ID,
		Content:          r.Content,
		Embedding:        r.Embedding,
		ThemeID:          r.ThemeID,
		SourceEpisodeIDs: decodeIDs(r.SourceEpisodeIDs),
		NeighborIDs:      decodeIDs(r.NeighborIDs),
		CreatedAtMs:      r.CreatedAtMs,
		UpdatedAtMs:      r.UpdatedAtMs,
	}
}

func episodeToRow(e Episode) databases.EpisodeRow {
	return databases.EpisodeRow{
		ID:           e.ID,
		Summary:      e.Summary,
		Embedding:    e.Embedding,
		SessionID:    e.SessionID,
		TurnStart:    e.TurnStart,
		TurnEnd:      e.TurnEnd,
		MessageCount: e.MessageCount,
		RawMessages:  encodeRawMessages(e.RawMessages),
		CreatedAtMs:  e.CreatedAtMs,
	}
}

func rowToEpisode(r databases.EpisodeRow) Episode {
	return Episode{
		ID:           r.ID,
		Summary:      r.Summary,
		Embedding:    r.Embedding,
		SessionID:    r.SessionID,
		TurnStart:    r.TurnStart,
		TurnEnd:      r.TurnEnd,
		MessageCount: r.MessageCount,
		RawMessages:  decodeRawMessages(r.RawMessages),
		CreatedAtMs:  r.CreatedAtMs,
	}
}

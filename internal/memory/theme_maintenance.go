package memory

import (
	"context"
	"fmt"

	"memoryengine/internal/persistence/databases"
)

// ThemeMaintainer runs the Theme Manager's split/merge gates over every
// live theme and persists the outcome. It is invoked from cron_weekly,
// separate from the per-episode Assign path so split/merge decisions see
// the whole theme population at once rather than one fact at a time.
type ThemeMaintainer struct {
	store databases.MemoryStore
	tm    *ThemeManager
	graph databases.GraphDB // optional; nil disables provenance edge updates
}

func NewThemeMaintainer(store databases.MemoryStore, tm *ThemeManager, graph databases.GraphDB) *ThemeMaintainer {
	return &ThemeMaintainer{store: store, tm: tm, graph: graph}
}

// ThemeMaintenanceReport summarises one maintenance pass.
type ThemeMaintenanceReport struct {
	Split  []string // original theme IDs that were split
	Merged []string // theme IDs absorbed into a neighbour and deleted
}

// Run loads every theme, splits any whose member count falls in the
// distribution's upper tail, then merges small, highly-similar neighbour
// pairs. Failures on an individual theme are swallowed so one bad row
// doesn't abort the pass (spec §7).
func (m *ThemeMaintainer) Run(ctx context.Context, summariser Summariser) (ThemeMaintenanceReport, error) {
	var report ThemeMaintenanceReport

	themeRows, err := m.store.ListThemes(ctx)
	if err != nil {
		return report, fmt.Errorf("theme maintenance: list themes: %w", err)
	}
	themes := make([]Theme, len(themeRows))
	for i, r := range themeRows {
		themes[i] = rowToTheme(r)
	}

	live := make(map[string]Theme, len(themes))
	for _, th := range themes {
		live[th.ID] = th
	}

	for _, th := range themes {
		if _, ok := live[th.ID]; !ok {
			continue // already merged away earlier in this pass
		}
		if !m.tm.ShouldSplit(len(th.SemanticIDs)) {
			continue
		}
		semRows, err := m.store.ListSemanticsByTheme(ctx, th.ID)
		if err != nil || len(semRows) < 2 {
			continue
		}
		semantics := make([]Semantic, len(semRows))
		for i, r := range semRows {
			semantics[i] = rowToSemantic(r)
		}
		childA, childB, splitErr := m.tm.Split(ctx, summariser, th, semantics)
		if splitErr != nil {
			continue
		}
		if err := m.store.UpsertTheme(ctx, themeToRow(childA)); err != nil {
			continue
		}
		if err := m.store.UpsertTheme(ctx, themeToRow(childB)); err != nil {
			continue
		}
		for _, s := range semantics {
			s.ThemeID = childA.ID
			for _, id := range childB.SemanticIDs {
				if id == s.ID {
					s.ThemeID = childB.ID
					break
				}
			}
			_ = m.store.UpsertSemantic(ctx, semanticToRow(s))
			m.reparentProvenance(ctx, s.ID, s.ThemeID)
		}
		_ = m.store.DeleteTheme(ctx, th.ID)
		delete(live, th.ID)
		live[childA.ID] = childA
		live[childB.ID] = childB
		report.Split = append(report.Split, th.ID)
	}

	remaining := make([]Theme, 0, len(live))
	for _, th := range live {
		remaining = append(remaining, th)
	}
	knn := m.tm.RecomputeKNN(remaining)
	byID := make(map[string]Theme, len(remaining))
	for _, th := range remaining {
		byID[th.ID] = th
	}

	merged := map[string]bool{}
	for _, a := range remaining {
		if merged[a.ID] {
			continue
		}
		for _, neighbourID := range knn[a.ID] {
			if merged[a.ID] || merged[neighbourID] {
				continue
			}
			b, ok := byID[neighbourID]
			if !ok {
				continue
			}
			sim := cosineSimilarity(a.Embedding, b.Embedding)
			if !m.tm.ShouldMerge(len(a.SemanticIDs), len(b.SemanticIDs), sim) {
				continue
			}
			mergedTheme := m.tm.Merge(a, b)
			semRows, err := m.store.ListSemanticsByTheme(ctx, b.ID)
			if err != nil {
				continue
			}
			for _, r := range semRows {
				s := rowToSemantic(r)
				s.ThemeID = mergedTheme.ID
				_ = m.store.UpsertSemantic(ctx, semanticToRow(s))
				m.reparentProvenance(ctx, s.ID, s.ThemeID)
			}
			semRowsAll, err := m.store.ListSemanticsByTheme(ctx, mergedTheme.ID)
			if err == nil {
				all := make([]Semantic, len(semRowsAll))
				for i, r := range semRowsAll {
					all[i] = rowToSemantic(r)
				}
				mergedTheme.Embedding = RecomputeCentroid(all)
			}
			if err := m.store.UpsertTheme(ctx, themeToRow(mergedTheme)); err != nil {
				continue
			}
			_ = m.store.DeleteTheme(ctx, b.ID)
			merged[b.ID] = true
			report.Merged = append(report.Merged, b.ID)
			byID[a.ID] = mergedTheme
			break
		}
	}

	return report, nil
}

// reparentProvenance records a fresh BELONGS_TO_THEME edge after a split or
// merge moves a semantic to a different theme. The old edge is left in
// place rather than deleted — GraphDB has no delete, and a stale edge is
// harmless history, not a correctness problem, for a provenance trail.
func (m *ThemeMaintainer) reparentProvenance(ctx context.Context, semanticID, themeID string) {
	if m.graph == nil {
		return
	}
	_ = m.graph.UpsertNode(ctx, themeID, []string{databases.LabelTheme}, nil)
	_ = m.graph.UpsertEdge(ctx, semanticID, databases.RelationBelongsToTheme, themeID, nil)
}

package memory

import (
	"context"
	"testing"

	"memoryengine/internal/persistence/databases"
)

func TestDecayWeight_HalfLifeBehavior(t *testing.T) {
	if w := DecayWeight(0, semanticHalfLifeDays); w != 1 {
		t.Fatalf("expected weight 1 at age 0, got %v", w)
	}
	w := DecayWeight(int64(semanticHalfLifeDays)*dayMs, semanticHalfLifeDays)
	if w < 0.49 || w > 0.51 {
		t.Fatalf("expected weight ~0.5 at exactly one half-life, got %v", w)
	}
	if w := DecayWeight(999999, 0); w != 1 {
		t.Fatalf("expected infinite half-life (themes) to never decay, got %v", w)
	}
}

func TestDecayManager_Sweep_DeletesOldSemanticsAndEpisodes(t *testing.T) {
	store := databases.NewInMemoryMemoryStore()
	ctx := context.Background()
	now := int64(1_000_000_000_000)

	oldSemantic := databases.SemanticRow{ID: "s-old", Content: "x", CreatedAtMs: now - int64(4*semanticHalfLifeDays*float64(dayMs))}
	freshSemantic := databases.SemanticRow{ID: "s-fresh", Content: "y", CreatedAtMs: now - int64(1*dayMs)}
	store.UpsertSemantic(ctx, oldSemantic)
	store.UpsertSemantic(ctx, freshSemantic)

	oldEpisode := databases.EpisodeRow{ID: "e-old", Summary: "x", CreatedAtMs: now - int64(4*episodeHalfLifeDays*float64(dayMs)), RawMessages: "[]"}
	staleRawEpisode := databases.EpisodeRow{ID: "e-stale-raw", Summary: "y", CreatedAtMs: now - int64(10*dayMs), RawMessages: "[{\"role\":\"user\"}]"}
	freshEpisode := databases.EpisodeRow{ID: "e-fresh", Summary: "z", CreatedAtMs: now - int64(1*dayMs), RawMessages: "[]"}
	store.UpsertEpisode(ctx, oldEpisode)
	store.UpsertEpisode(ctx, staleRawEpisode)
	store.UpsertEpisode(ctx, freshEpisode)

	mgr := NewDecayManager(store)
	report := mgr.Sweep(ctx, now)

	if report.SemanticsDeleted != 1 {
		t.Fatalf("expected 1 semantic deleted, got %d (failures=%d)", report.SemanticsDeleted, report.Failures)
	}
	if report.EpisodesDeleted != 1 {
		t.Fatalf("expected 1 episode deleted, got %d", report.EpisodesDeleted)
	}
	if report.RawMessagesBlanked != 1 {
		t.Fatalf("expected 1 episode's raw messages blanked, got %d", report.RawMessagesBlanked)
	}

	if _, ok, _ := store.GetSemantic(ctx, "s-old"); ok {
		t.Fatalf("expected s-old to be deleted")
	}
	if _, ok, _ := store.GetSemantic(ctx, "s-fresh"); !ok {
		t.Fatalf("expected s-fresh to survive")
	}

	blanked, ok, _ := store.GetEpisode(ctx, "e-stale-raw")
	if !ok {
		t.Fatalf("expected e-stale-raw to still exist")
	}
	if blanked.RawMessages != "" {
		t.Fatalf("expected raw messages blanked, got %q", blanked.RawMessages)
	}

	fresh, ok, _ := store.GetEpisode(ctx, "e-fresh")
	if !ok || fresh.RawMessages == "" {
		t.Fatalf("expected e-fresh to survive untouched")
	}
}

func TestDecayManager_Sweep_NeverTouchesThemes(t *testing.T) {
	store := databases.NewInMemoryMemoryStore()
	ctx := context.Background()
	now := int64(1_000_000_000_000)
	store.UpsertTheme(ctx, databases.ThemeRow{ID: "t1", Name: "ancient theme", CreatedAtMs: 0, LastActiveMs: 0})

	mgr := NewDecayManager(store)
	mgr.Sweep(ctx, now)

	if _, ok, _ := store.GetTheme(ctx, "t1"); !ok {
		t.Fatalf("expected themes to never be swept regardless of age")
	}
}

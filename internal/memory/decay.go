package memory

import (
	"context"
	"math"
	"strings"

	"memoryengine/internal/objectstore"
	"memoryengine/internal/persistence/databases"
)

// Decay policy (spec §4.9): themes never forget; semantics and episodes
// decay on a half-life; raw message blobs on episodes are retained briefly
// then blanked independent of the episode's own half-life.
const (
	semanticHalfLifeDays    = 180.0
	episodeHalfLifeDays     = 30.0
	rawMessageRetentionDays = 7.0
	decayDeleteMultiple     = 3.0
	decaySweepPageSize      = 200
)

// DecayWeight returns 0.5^(age/halfLifeDays), the recency weight used to
// deprioritize stale memories in retrieval ranking. halfLifeDays <= 0 means
// infinite half-life (never decays, e.g. themes).
func DecayWeight(ageMs int64, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	ageDays := float64(ageMs) / float64(dayMs)
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// SweepReport summarises one decay sweep.
type SweepReport struct {
	SemanticsDeleted   int
	EpisodesDeleted    int
	RawMessagesBlanked int
	Failures           int
}

// DecayManager runs the weekly decay sweep (spec §4.9, §9 Open Question a:
// an explicit full-table scan rather than a zero-vector proxy query).
type DecayManager struct {
	store   databases.MemoryStore
	archive objectstore.ObjectStore // optional; nil disables raw-message archival
}

func NewDecayManager(store databases.MemoryStore) *DecayManager {
	return &DecayManager{store: store}
}

// WithArchive archives an episode's raw messages to object storage just
// before they are blanked from the row, instead of discarding them
// outright (SPEC_FULL.md supplemental feature: cold storage for audit/
// replay, independent of the store's own retention).
func (m *DecayManager) WithArchive(store objectstore.ObjectStore) *DecayManager {
	m.archive = store
	return m
}

func (m *DecayManager) archiveKey(episodeID string) string {
	return "episodes/" + strings.TrimSpace(episodeID) + "/raw_messages.json"
}

// Sweep walks every semantic and episode row and applies the decay policy.
// Individual row failures are swallowed and counted, never aborting the
// sweep (spec §7 "nothing thrown escapes a hook callback").
func (m *DecayManager) Sweep(ctx context.Context, nowMs int64) SweepReport {
	var report SweepReport

	offset := 0
	for {
		page, err := m.store.ScanSemantics(ctx, offset, decaySweepPageSize)
		if err != nil {
			report.Failures++
			break
		}
		deleted := 0
		for _, row := range page.Rows {
			age := nowMs - row.CreatedAtMs
			if float64(age) >= decayDeleteMultiple*semanticHalfLifeDays*float64(dayMs) {
				if err := m.store.DeleteSemantic(ctx, row.ID); err != nil {
					report.Failures++
					continue
				}
				report.SemanticsDeleted++
				deleted++
			}
		}
		if page.Done {
			break
		}
		// Rows deleted from this page shift the later rows down.
		offset = page.NextOffset - deleted
	}

	offset = 0
	for {
		page, err := m.store.ScanEpisodes(ctx, offset, decaySweepPageSize)
		if err != nil {
			report.Failures++
			break
		}
		deleted := 0
		for _, row := range page.Rows {
			age := nowMs - row.CreatedAtMs
			switch {
			case float64(age) >= decayDeleteMultiple*episodeHalfLifeDays*float64(dayMs):
				if err := m.store.DeleteEpisode(ctx, row.ID); err != nil {
					report.Failures++
					continue
				}
				report.EpisodesDeleted++
				deleted++
			case float64(age) >= rawMessageRetentionDays*float64(dayMs) && row.RawMessages != "":
				if m.archive != nil {
					if _, err := m.archive.Put(ctx, m.archiveKey(row.ID), strings.NewReader(row.RawMessages), objectstore.PutOptions{ContentType: "application/json"}); err != nil {
						report.Failures++
						continue
					}
				}
				if err := m.store.BlankRawMessages(ctx, row.ID); err != nil {
					report.Failures++
					continue
				}
				report.RawMessagesBlanked++
			}
		}
		if page.Done {
			break
		}
		offset = page.NextOffset - deleted
	}

	return report
}

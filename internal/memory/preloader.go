package memory

import (
	"fmt"
	"sort"
	"time"
)

const (
	preloaderBucketHours = 3
	preloaderMinObserved = 3
	preloaderTopN        = 2
)

// bucketKey identifies a (day-of-week, 3-hour-bucket) slot.
type bucketKey struct {
	weekday int
	hour3   int
}

func bucketFor(t time.Time) bucketKey {
	return bucketKey{weekday: int(t.Weekday()), hour3: t.Hour() / preloaderBucketHours}
}

func (b bucketKey) String() string {
	return fmt.Sprintf("%d:%02d", b.weekday, b.hour3*preloaderBucketHours)
}

// SessionObservation is one past session's theme and the time it happened,
// the raw signal the Predictive Preloader buckets (spec §4.11).
type SessionObservation struct {
	ThemeID   string
	Timestamp time.Time
}

// PredictivePreloader buckets past sessions by (day-of-week, 3-hour window)
// and predicts which themes are likely to be needed next based on what
// themes recurred in that bucket historically.
type PredictivePreloader struct {
	counts map[bucketKey]map[string]int
}

func NewPredictivePreloader() *PredictivePreloader {
	return &PredictivePreloader{counts: map[bucketKey]map[string]int{}}
}

// Observe folds one historical session into the bucket model.
func (p *PredictivePreloader) Observe(obs SessionObservation) {
	k := bucketFor(obs.Timestamp)
	m, ok := p.counts[k]
	if !ok {
		m = map[string]int{}
		p.counts[k] = m
	}
	m[obs.ThemeID]++
}

// ObserveAll folds a batch of historical sessions.
func (p *PredictivePreloader) ObserveAll(obs []SessionObservation) {
	for _, o := range obs {
		p.Observe(o)
	}
}

// Predict returns up to preloaderTopN theme IDs seen at least
// preloaderMinObserved times in the bucket containing now, ordered by
// descending observed count. Returns nil if no theme in that bucket has
// reached the minimum observation count.
func (p *PredictivePreloader) Predict(now time.Time) []string {
	k := bucketFor(now)
	m, ok := p.counts[k]
	if !ok {
		return nil
	}
	type themeCount struct {
		themeID string
		count   int
	}
	var candidates []themeCount
	for themeID, count := range m {
		if count >= preloaderMinObserved {
			candidates = append(candidates, themeCount{themeID, count})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].themeID < candidates[j].themeID
	})
	if len(candidates) > preloaderTopN {
		candidates = candidates[:preloaderTopN]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.themeID
	}
	return out
}

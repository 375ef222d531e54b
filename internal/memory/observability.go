package memory

import "memoryengine/internal/observability"

const (
	observabilityRingCapacity = 100
	observabilitySatisfyGapMs = 60_000
)

// ObservabilityReport aggregates the ring buffer (spec §4.12).
type ObservabilityReport struct {
	TraceCount       int
	HitRate          float64 // fraction of traces with Stage2 != NO and >0 facts
	AvgTokensInjected float64
	SatisfactionRate float64 // satisfied / (satisfied+unsatisfied), excludes unknown
}

// ObservabilityRecorder keeps a bounded ring buffer of retrieval traces,
// retroactively labelling each one satisfied/unsatisfied once the next
// query arrives (spec §4.12).
type ObservabilityRecorder struct {
	traces  []ObservabilityTrace
	metrics observability.MetricsSink // optional; nil disables OTel export
}

func NewObservabilityRecorder() *ObservabilityRecorder {
	return &ObservabilityRecorder{}
}

// WithMetrics exports every recorded trace and Report() call to an OTel
// MetricsSink, in addition to keeping the in-process ring buffer.
func (o *ObservabilityRecorder) WithMetrics(sink observability.MetricsSink) *ObservabilityRecorder {
	o.metrics = sink
	return o
}

// Record appends a new trace. If a prior trace exists, it is labelled
// satisfied if this query arrived at least 60s after it, unsatisfied
// otherwise (a fast follow-up implies the prior answer didn't suffice).
func (o *ObservabilityRecorder) Record(tr ObservabilityTrace) {
	if n := len(o.traces); n > 0 {
		prev := &o.traces[n-1]
		if prev.Satisfaction == SatisfiedUnknown {
			gap := tr.TimestampMs - prev.TimestampMs
			if gap >= observabilitySatisfyGapMs {
				prev.Satisfaction = SatisfiedYes
			} else {
				prev.Satisfaction = SatisfiedNo
			}
		}
	}
	o.traces = append(o.traces, tr)
	if len(o.traces) > observabilityRingCapacity {
		o.traces = o.traces[len(o.traces)-observabilityRingCapacity:]
	}
	if o.metrics != nil {
		o.metrics.ObserveHistogram("memory_tokens_injected", float64(tr.TokensInjected), map[string]string{"stage2": string(tr.Stage2)})
		if tr.Stage2 != StageNO && len(tr.SelectedFacts) > 0 {
			o.metrics.IncCounter("memory_retrieval_hit", nil)
		}
	}
}

// FinalizeLast labels the most recent trace as satisfied when no further
// query ever arrives within the window (e.g. a cron sweep closing out a
// stale session).
func (o *ObservabilityRecorder) FinalizeLast(nowMs int64) {
	n := len(o.traces)
	if n == 0 {
		return
	}
	last := &o.traces[n-1]
	if last.Satisfaction != SatisfiedUnknown {
		return
	}
	if nowMs-last.TimestampMs >= observabilitySatisfyGapMs {
		last.Satisfaction = SatisfiedYes
	}
}

// Traces returns a copy of the current ring buffer, oldest first.
func (o *ObservabilityRecorder) Traces() []ObservabilityTrace {
	out := make([]ObservabilityTrace, len(o.traces))
	copy(out, o.traces)
	return out
}

// Report summarises hit rate, average injected tokens, and satisfaction
// rate across the buffer.
func (o *ObservabilityRecorder) Report() ObservabilityReport {
	n := len(o.traces)
	if n == 0 {
		return ObservabilityReport{}
	}
	hits := 0
	tokenSum := 0
	satisfied := 0
	rated := 0
	for _, tr := range o.traces {
		if tr.Stage2 != StageNO && len(tr.SelectedFacts) > 0 {
			hits++
		}
		tokenSum += tr.TokensInjected
		switch tr.Satisfaction {
		case SatisfiedYes:
			satisfied++
			rated++
		case SatisfiedNo:
			rated++
		}
	}
	report := ObservabilityReport{
		TraceCount:        n,
		HitRate:           float64(hits) / float64(n),
		AvgTokensInjected: float64(tokenSum) / float64(n),
	}
	if rated > 0 {
		report.SatisfactionRate = float64(satisfied) / float64(rated)
	}
	if o.metrics != nil {
		o.metrics.ObserveHistogram("memory_hit_rate", report.HitRate, nil)
		o.metrics.ObserveHistogram("memory_satisfaction_rate", report.SatisfactionRate, nil)
	}
	return report
}

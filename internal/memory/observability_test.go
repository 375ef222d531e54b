package memory

import (
	"testing"

	"memoryengine/internal/observability"
)

func TestObservabilityRecorder_FastFollowUpMarksUnsatisfied(t *testing.T) {
	o := NewObservabilityRecorder()
	o.Record(ObservabilityTrace{Query: "first", TimestampMs: 0, Stage2: StagePARTIAL, SelectedFacts: []string{"a"}})
	o.Record(ObservabilityTrace{Query: "second", TimestampMs: 10_000})

	traces := o.Traces()
	if traces[0].Satisfaction != SatisfiedNo {
		t.Fatalf("expected fast follow-up to mark the prior trace unsatisfied, got %s", traces[0].Satisfaction)
	}
}

func TestObservabilityRecorder_SlowFollowUpMarksSatisfied(t *testing.T) {
	o := NewObservabilityRecorder()
	o.Record(ObservabilityTrace{Query: "first", TimestampMs: 0, Stage2: StagePARTIAL, SelectedFacts: []string{"a"}})
	o.Record(ObservabilityTrace{Query: "second", TimestampMs: 120_000})

	traces := o.Traces()
	if traces[0].Satisfaction != SatisfiedYes {
		t.Fatalf("expected slow follow-up to mark the prior trace satisfied, got %s", traces[0].Satisfaction)
	}
}

func TestObservabilityRecorder_RingBufferCapsAt100(t *testing.T) {
	o := NewObservabilityRecorder()
	for i := 0; i < 150; i++ {
		o.Record(ObservabilityTrace{Query: "q", TimestampMs: int64(i) * 200_000})
	}
	if len(o.Traces()) != observabilityRingCapacity {
		t.Fatalf("expected ring buffer capped at %d, got %d", observabilityRingCapacity, len(o.Traces()))
	}
}

func TestObservabilityRecorder_ReportComputesRates(t *testing.T) {
	o := NewObservabilityRecorder()
	o.Record(ObservabilityTrace{Stage2: StageYES, SelectedFacts: []string{"a"}, TokensInjected: 100, TimestampMs: 0})
	o.Record(ObservabilityTrace{Stage2: StageNO, TokensInjected: 0, TimestampMs: 120_000})
	o.FinalizeLast(300_000)

	report := o.Report()
	if report.TraceCount != 2 {
		t.Fatalf("expected 2 traces, got %d", report.TraceCount)
	}
	if report.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5 (one hit of two), got %v", report.HitRate)
	}
	if report.AvgTokensInjected != 50 {
		t.Fatalf("expected avg tokens 50, got %v", report.AvgTokensInjected)
	}
	if report.SatisfactionRate != 1.0 {
		t.Fatalf("expected satisfaction rate 1.0 (both satisfied), got %v", report.SatisfactionRate)
	}
}

func TestObservabilityRecorder_WithMetricsExportsToSink(t *testing.T) {
	sink := observability.NewMockMetrics()
	o := NewObservabilityRecorder().WithMetrics(sink)

	o.Record(ObservabilityTrace{Stage2: StageYES, SelectedFacts: []string{"a"}, TokensInjected: 42, TimestampMs: 0})
	if got := sink.Hists["memory_tokens_injected"]; len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected one tokens-injected observation of 42, got %#v", got)
	}
	if sink.Counters["memory_retrieval_hit"] != 1 {
		t.Fatalf("expected one retrieval-hit increment, got %d", sink.Counters["memory_retrieval_hit"])
	}

	o.FinalizeLast(300_000)
	o.Report()
	if len(sink.Hists["memory_hit_rate"]) != 1 {
		t.Fatalf("expected Report to export memory_hit_rate once, got %#v", sink.Hists["memory_hit_rate"])
	}
	if len(sink.Hists["memory_satisfaction_rate"]) != 1 {
		t.Fatalf("expected Report to export memory_satisfaction_rate once, got %#v", sink.Hists["memory_satisfaction_rate"])
	}
}

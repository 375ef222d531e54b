package memory

import "testing"

func TestFeedbackTuner_UnsatisfiedLowFactsIncreasesAlpha(t *testing.T) {
	f := NewFeedbackTuner()
	traces := []ObservabilityTrace{
		{Satisfaction: SatisfiedNo, SelectedFacts: []string{"a"}},
	}
	got := f.Adjust(traces)
	if got <= feedbackDefaultA {
		t.Fatalf("expected alpha to increase above default, got %v", got)
	}
}

func TestFeedbackTuner_SatisfiedDecreasesAlpha(t *testing.T) {
	f := NewFeedbackTuner()
	traces := []ObservabilityTrace{
		{Satisfaction: SatisfiedYes, SelectedFacts: []string{"a", "b", "c", "d"}},
	}
	got := f.Adjust(traces)
	if got >= feedbackDefaultA {
		t.Fatalf("expected alpha to decrease below default, got %v", got)
	}
}

func TestFeedbackTuner_ClampsToBounds(t *testing.T) {
	f := NewFeedbackTuner()
	var traces []ObservabilityTrace
	for i := 0; i < 30; i++ {
		traces = append(traces, ObservabilityTrace{Satisfaction: SatisfiedNo, SelectedFacts: nil})
	}
	got := f.Adjust(traces)
	if got != feedbackAlphaMax {
		t.Fatalf("expected alpha clamped to max %v, got %v", feedbackAlphaMax, got)
	}
}

func TestFeedbackTuner_OnlyUsesLastTenRatedTraces(t *testing.T) {
	f := NewFeedbackTuner()
	var traces []ObservabilityTrace
	for i := 0; i < 20; i++ {
		traces = append(traces, ObservabilityTrace{Satisfaction: SatisfiedUnknown})
	}
	for i := 0; i < 3; i++ {
		traces = append(traces, ObservabilityTrace{Satisfaction: SatisfiedNo, SelectedFacts: nil})
	}
	got := f.Adjust(traces)
	want := feedbackDefaultA + 3*feedbackStep
	if got < want-0.001 || got > want+0.001 {
		t.Fatalf("expected alpha %v from 3 rated traces ignoring unknowns, got %v", want, got)
	}
}

package memory

import (
	"context"
	"testing"
)

func TestClassifyUncertainty_ZeroMarkersIsNone(t *testing.T) {
	if lvl := ClassifyUncertainty("The capital of France is Paris.", "what is the capital?", nil); lvl != UncertaintyNone {
		t.Fatalf("expected none, got %s", lvl)
	}
}

func TestClassifyUncertainty_PriceQuestionScenario(t *testing.T) {
	lvl := ClassifyUncertainty("I think it costs around $50", "how much does it cost?", nil)
	if lvl != UncertaintyMedium {
		t.Fatalf("expected medium (1 marker + important), got %s", lvl)
	}
	if !IsImportantQuestion("how much does it cost?") {
		t.Fatalf("expected cost question to be flagged important")
	}
}

func TestClassifyUncertainty_RepeatedQuestionPromotesToMedium(t *testing.T) {
	lvl := ClassifyUncertainty("It works fine.", "how do I configure the timeout", []string{"how do I configure the timeout"})
	if lvl != UncertaintyMedium {
		t.Fatalf("expected repeated question to promote to medium, got %s", lvl)
	}
}

func TestRunActiveRetrieval_NoneSkipsEntirely(t *testing.T) {
	called := false
	cb := HostCallbacks{MemoryRecall: func(ctx context.Context, q string) ([]string, error) {
		called = true
		return []string{"x"}, nil
	}}
	res, err := RunActiveRetrieval(context.Background(), UncertaintyNone, "q", "a", cb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called || res.Source != "" {
		t.Fatalf("expected none level to skip the chain entirely, got called=%v res=%#v", called, res)
	}
}

func TestRunActiveRetrieval_UncertaintyToVerifyScenario(t *testing.T) {
	cb := HostCallbacks{
		WebSearch: func(ctx context.Context, q string) ([]string, error) {
			return []string{"Official pricing: $50 per month"}, nil
		},
	}
	res, err := RunActiveRetrieval(context.Background(), UncertaintyMedium, "how much does it cost?", "I think it costs around $50", cb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "web" {
		t.Fatalf("expected web source, got %q", res.Source)
	}
	if !res.Verified {
		t.Fatalf("expected cross-verification to succeed on shared $50 token")
	}
}

func TestRunActiveRetrieval_StopsAtFirstNonEmpty(t *testing.T) {
	webCalled := false
	cb := HostCallbacks{
		MemoryRecall: func(ctx context.Context, q string) ([]string, error) { return []string{"found in memory"}, nil },
		WebSearch: func(ctx context.Context, q string) ([]string, error) {
			webCalled = true
			return []string{"should not be reached"}, nil
		},
	}
	res, err := RunActiveRetrieval(context.Background(), UncertaintyHigh, "q", "a", cb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "memory" || webCalled {
		t.Fatalf("expected chain to stop at memory recall, got source=%q webCalled=%v", res.Source, webCalled)
	}
}

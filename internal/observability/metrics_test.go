package observability

import "testing"

func TestMockMetrics_RecordsCountersAndHistograms(t *testing.T) {
	m := NewMockMetrics()
	m.IncCounter("memory_retrieval_hit", map[string]string{"stage2": "YES"})
	m.IncCounter("memory_retrieval_hit", nil)
	m.ObserveHistogram("memory_tokens_injected", 100, map[string]string{"stage2": "YES"})

	if m.Counters["memory_retrieval_hit"] != 2 {
		t.Fatalf("expected counter to reach 2, got %d", m.Counters["memory_retrieval_hit"])
	}
	if len(m.Hists["memory_tokens_injected"]) != 1 || m.Hists["memory_tokens_injected"][0] != 100 {
		t.Fatalf("unexpected histogram samples: %#v", m.Hists["memory_tokens_injected"])
	}
	labels := m.Labels["memory_retrieval_hit"]
	if len(labels) != 2 || labels[0]["stage2"] != "YES" || labels[1] != nil {
		t.Fatalf("unexpected recorded labels: %#v", labels)
	}
}

func TestCloneLabels_NilAndPopulated(t *testing.T) {
	if got := cloneLabels(nil); got != nil {
		t.Fatalf("expected nil clone of nil input, got %#v", got)
	}
	in := map[string]string{"a": "1"}
	out := cloneLabels(in)
	out["a"] = "2"
	if in["a"] != "1" {
		t.Fatalf("cloneLabels should not alias the input map")
	}
}

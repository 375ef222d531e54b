package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMemoryToolkit_StoreRespectsCapAndOverlap(t *testing.T) {
	k := NewMemoryToolkit()
	output := "The product costs 50 dollars per month. " +
		"It supports version v2.1 of the API. " +
		"The getUserProfile function is CamelCase. " +
		"The release date is 2024 for the update. " +
		"This is yet another unrelated factual sentence about servers."
	decisions := k.Decide("how much is it", output, nil, []string{"cost"})
	storeCount := 0
	for _, d := range decisions {
		if d.Kind == DecisionStore {
			storeCount++
		}
	}
	if storeCount > maxStorePerTurn {
		t.Fatalf("expected at most %d store decisions, got %d", maxStorePerTurn, storeCount)
	}
	if storeCount == 0 {
		t.Fatalf("expected at least one store decision")
	}
}

func TestMemoryToolkit_StoreSkipsHighOverlap(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{"The product costs 50 dollars per month for the basic plan tier"}
	output := "The product costs 50 dollars per month for the basic plan tier today."
	decisions := k.Decide("", output, existing, nil)
	for _, d := range decisions {
		if d.Kind == DecisionStore {
			t.Fatalf("expected near-duplicate sentence to be skipped, got store decision: %q", d.Text)
		}
	}
}

func TestMemoryToolkit_CorrectionDiscardsMatchingMemory(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{
		"产品价格是 50 元每月",
		"服务器位于北京",
	}
	decisions := k.Decide("不对，产品价格应该是 100 元不是 50 元", "", existing, nil)
	found := false
	for _, d := range decisions {
		if d.Kind == DecisionDiscard && d.TargetMemory == existing[0] {
			found = true
		}
		if d.Kind == DecisionDiscard && d.TargetMemory == existing[1] {
			t.Fatalf("unrelated memory should not be discarded: %q", d.TargetMemory)
		}
	}
	if !found {
		t.Fatalf("expected the price memory to be discarded, got %#v", decisions)
	}
}

func TestMemoryToolkit_NoCorrectionNoDiscard(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{"产品价格是 50 元每月"}
	decisions := k.Decide("产品价格是多少", "", existing, nil)
	for _, d := range decisions {
		if d.Kind == DecisionDiscard {
			t.Fatalf("expected no discard without a correction marker, got %#v", d)
		}
	}
}

func TestMemoryToolkit_SummarizeClustersFiveSimilarMemories(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{
		"deployment uses kubernetes cluster with three nodes",
		"deployment uses kubernetes cluster with autoscaling enabled",
		"deployment uses kubernetes cluster with ingress configured",
		"deployment uses kubernetes cluster with monitoring enabled",
		"deployment uses kubernetes cluster with backups scheduled",
		"completely unrelated fact about the weather today",
	}
	decisions := k.Decide("", "", existing, nil)
	found := false
	for _, d := range decisions {
		if d.Kind == DecisionSummarize {
			found = true
			if d.Importance <= 0.5 {
				t.Fatalf("expected consolidated entry to have higher importance, got %v", d.Importance)
			}
		}
	}
	if !found {
		t.Fatalf("expected a summarize decision for the 5-member cluster, got %#v", decisions)
	}
}

func TestMemoryToolkit_NoSummarizeBelowFiveMembers(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{
		"deployment uses kubernetes cluster with three nodes",
		"deployment uses kubernetes cluster with autoscaling enabled",
		"completely unrelated fact one",
		"completely unrelated fact two",
	}
	decisions := k.Decide("", "", existing, nil)
	for _, d := range decisions {
		if d.Kind == DecisionSummarize {
			t.Fatalf("expected no summarize decision below the cluster minimum, got %#v", d)
		}
	}
}

func TestMemoryToolkit_DecideIsIdempotent(t *testing.T) {
	k := NewMemoryToolkit()
	existing := []string{
		"产品价格是 50 元每月",
		"deployment uses kubernetes cluster with three nodes",
		"deployment uses kubernetes cluster with autoscaling enabled",
		"deployment uses kubernetes cluster with ingress configured",
		"deployment uses kubernetes cluster with monitoring enabled",
		"deployment uses kubernetes cluster with backups scheduled",
	}
	output := "The product costs 50 dollars per month. It supports version v2.1 of the API."
	first := k.Decide("不对，产品价格应该是 100 元不是 50 元", output, existing, []string{"cost"})
	second := k.Decide("不对，产品价格应该是 100 元不是 50 元", output, existing, []string{"cost"})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected Decide to be idempotent, got %#v vs %#v", first, second)
	}
}

func TestApplyDecisions_SwallowsAndCountsFailures(t *testing.T) {
	decisions := []MemoryEditDecision{
		{Kind: DecisionStore, Text: "a fact", Category: "fact", Importance: 0.5},
		{Kind: DecisionStore, Text: "b fact", Category: "fact", Importance: 0.5},
		{Kind: DecisionDiscard, TargetMemory: "old fact"},
	}
	cb := HostCallbacks{
		MemoryStore: func(ctx context.Context, text, category string, importance float64) error {
			if text == "b fact" {
				return errors.New("boom")
			}
			return nil
		},
		MemoryForget: func(ctx context.Context, query string) error { return nil },
	}
	applied, failed := ApplyDecisions(context.Background(), decisions, cb)
	if applied != 2 || failed != 1 {
		t.Fatalf("expected 2 applied and 1 failed, got applied=%d failed=%d", applied, failed)
	}
}

func TestApplyDecisions_MissingCallbackCountsAsFailure(t *testing.T) {
	decisions := []MemoryEditDecision{{Kind: DecisionStore, Text: "a fact"}}
	applied, failed := ApplyDecisions(context.Background(), decisions, HostCallbacks{})
	if applied != 0 || failed != 1 {
		t.Fatalf("expected 0 applied and 1 failed with no callback wired, got applied=%d failed=%d", applied, failed)
	}
}

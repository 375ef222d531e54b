package memory

import (
	"strings"
	"testing"
)

func TestBudgetManager_NeverExceedsTotal(t *testing.T) {
	b := NewBudgetManager(500)
	items := []BudgetItem{
		{Tier: TierIdentity, Text: strings.Repeat("id ", 15)},
		{Tier: TierWorkspace, Text: strings.Repeat("ws ", 400)},
		{Tier: TierWorkspace, Text: strings.Repeat("ws2 ", 400)},
		{Tier: TierWorkspace, Text: strings.Repeat("ws3 ", 400)},
	}
	res := b.Allocate(items)
	if res.TotalUsed > 500 {
		t.Fatalf("expected total used <= 500, got %d", res.TotalUsed)
	}
}

func TestBudgetManager_IdentityNeverTrimmedBeforeNonIdentityDropped(t *testing.T) {
	b := NewBudgetManager(500)
	identityText := strings.Repeat("id ", 12) // ~9 tokens, fits the 10% identity tier
	items := []BudgetItem{
		{Tier: TierIdentity, Text: identityText},
		{Tier: TierWorkspace, Text: strings.Repeat("ws ", 400)},
		{Tier: TierWorkspace, Text: strings.Repeat("ws2 ", 400)},
		{Tier: TierWorkspace, Text: strings.Repeat("ws3 ", 400)},
	}
	res := b.Allocate(items)

	var identityItem *AllocatedItem
	nonIdentityCount := 0
	for i := range res.Items {
		if res.Items[i].Tier == TierIdentity {
			identityItem = &res.Items[i]
		} else {
			nonIdentityCount++
		}
	}
	if identityItem == nil {
		t.Fatalf("expected the identity item to survive")
	}
	if identityItem.Trimmed {
		t.Fatalf("identity item must never be trimmed while non-identity items could still be dropped")
	}
	if nonIdentityCount >= 3 {
		t.Fatalf("expected workspace items to be trimmed/dropped under pressure, got %d survivors", nonIdentityCount)
	}
}

func TestBudgetManager_TrimsBoundaryRespecting(t *testing.T) {
	trimmed := trimToTokens("line one\nline two\nline three\nline four", 3)
	if strings.Contains(trimmed, "\n") == false && strings.TrimSpace(trimmed) == "" {
		t.Fatalf("unexpected empty trim result")
	}
	for _, l := range strings.Split(trimmed, "\n") {
		found := false
		for _, orig := range []string{"line one", "line two", "line three", "line four"} {
			if l == orig {
				found = true
			}
		}
		if !found {
			t.Fatalf("trim must cut on line boundaries, got fragment %q", l)
		}
	}
}

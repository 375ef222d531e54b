package memory

import "strings"

// Tier is the coarse priority class determining trim order under token
// pressure (spec §4.7, GLOSSARY "Budget tier").
type Tier string

const (
	TierIdentity  Tier = "identity"
	TierWorkspace Tier = "workspace"
	TierMemory    Tier = "memory"
	TierTools     Tier = "tools"
	TierExtras    Tier = "extras"
)

// tierPriority is allocation (and protection) order: identity first and
// never trimmed; extras last and trimmed first under pressure.
var tierPriority = []Tier{TierIdentity, TierWorkspace, TierMemory, TierTools, TierExtras}

var tierRatio = map[Tier]float64{
	TierIdentity:  0.10,
	TierWorkspace: 0.35,
	TierMemory:    0.30,
	TierTools:     0.15,
	TierExtras:    0.10,
}

// minTrimRemainder is the smallest remaining tier budget worth trimming an
// item into, rather than dropping it outright (spec §4.7).
const minTrimRemainder = 50

// BudgetItem is one candidate for prompt injection, tagged by tier.
type BudgetItem struct {
	Tier Tier
	Text string
}

// AllocatedItem is an admitted (possibly trimmed) BudgetItem.
type AllocatedItem struct {
	Tier    Tier
	Text    string
	Tokens  int
	Trimmed bool
}

// BudgetResult is the Budget Manager's final prompt injection plan.
type BudgetResult struct {
	Items      []AllocatedItem
	TotalUsed  int
	Savings    int // original (untrimmed, undropped) - used
}

// BudgetManager is the priority-tier token allocator of spec §4.7.
type BudgetManager struct {
	totalBudget int
}

// NewBudgetManager constructs a manager. totalBudget<=0 uses the spec
// default (4000).
func NewBudgetManager(totalBudget int) *BudgetManager {
	if totalBudget <= 0 {
		totalBudget = 4000
	}
	return &BudgetManager{totalBudget: totalBudget}
}

// Allocate assembles the final injection: tier-by-tier admission with
// boundary-respecting trimming, followed by a global second pass that trims
// from the lowest tier upward if rounding left the total over budget.
func (b *BudgetManager) Allocate(items []BudgetItem) BudgetResult {
	byTier := make(map[Tier][]BudgetItem, len(tierPriority))
	originalTotal := 0
	for _, it := range items {
		byTier[it.Tier] = append(byTier[it.Tier], it)
		originalTotal += EstimateTokens(it.Text)
	}

	var allocated []AllocatedItem
	for _, tier := range tierPriority {
		tierBudget := int(float64(b.totalBudget) * tierRatio[tier])
		running := 0
		for _, it := range byTier[tier] {
			remaining := tierBudget - running
			if remaining <= 0 {
				break
			}
			cost := EstimateTokens(it.Text)
			if cost <= remaining {
				allocated = append(allocated, AllocatedItem{Tier: tier, Text: it.Text, Tokens: cost})
				running += cost
				continue
			}
			if remaining >= minTrimRemainder {
				trimmed := trimToTokens(it.Text, remaining)
				allocated = append(allocated, AllocatedItem{Tier: tier, Text: trimmed, Tokens: EstimateTokens(trimmed), Trimmed: true})
				running = tierBudget
				break
			}
			// Too small a remainder to bother trimming into; drop this
			// item and see if a smaller one later in the tier still fits.
		}
	}

	total := sumTokens(allocated)
	if total > b.totalBudget {
		allocated, total = trimFromLowestTier(allocated, b.totalBudget, total)
	}

	return BudgetResult{Items: allocated, TotalUsed: total, Savings: originalTotal - total}
}

func sumTokens(items []AllocatedItem) int {
	n := 0
	for _, it := range items {
		n += it.Tokens
	}
	return n
}

// trimFromLowestTier drops or trims items starting from the lowest-priority
// tier until total <= budget. identity is never touched.
func trimFromLowestTier(items []AllocatedItem, budget, total int) ([]AllocatedItem, int) {
	for i := len(tierPriority) - 1; i >= 0 && total > budget; i-- {
		tier := tierPriority[i]
		if tier == TierIdentity {
			continue
		}
		for idx := len(items) - 1; idx >= 0 && total > budget; idx-- {
			if items[idx].Tier != tier {
				continue
			}
			over := total - budget
			if items[idx].Tokens <= over {
				total -= items[idx].Tokens
				items = append(items[:idx], items[idx+1:]...)
				continue
			}
			newTokens := items[idx].Tokens - over
			items[idx].Text = trimToTokens(items[idx].Text, newTokens)
			items[idx].Tokens = EstimateTokens(items[idx].Text)
			items[idx].Trimmed = true
			total = sumTokens(items)
		}
	}
	return items, total
}

// trimToTokens truncates text line-by-line (never mid-line) until its
// estimated token count fits within maxTokens. Falls back to a rune-level
// cut if even the first line overflows.
func trimToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	lines := strings.Split(text, "\n")
	var kept []string
	used := 0
	for _, l := range lines {
		cost := EstimateTokens(l)
		if used+cost > maxTokens {
			break
		}
		kept = append(kept, l)
		used += cost
	}
	if len(kept) > 0 {
		return strings.Join(kept, "\n")
	}
	// Even the first line overflows: cut by rune count as a last resort,
	// approximating 4 chars/token for the non-CJK case.
	approxRunes := maxTokens * 4
	r := []rune(text)
	if approxRunes >= len(r) {
		return text
	}
	return string(r[:approxRunes])
}

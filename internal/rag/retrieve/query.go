package retrieve

import (
	"context"
	"math"
	"strings"
)

// maxWorkspaceFilters caps the number of metadata filter entries a single
// WorkspaceGrep query plan carries, regardless of how many a host passes in
// RetrieveOptions.Filter.
const maxWorkspaceFilters = 1000

// QueryPlan is the normalized plan the workspace-grep backend executes: the
// cleaned-up query text, a candidate budget split between the full-text and
// vector legs, and the metadata filters both legs apply.
type QueryPlan struct {
	Query   string
	Lang    string
	FtK     int
	VecK    int
	Filters map[string]string
	Tenant  string
}

// BuildQueryPlan normalizes the query, detects language (best-effort),
// splits candidate budgets between FTS and vector using Alpha, and builds
// metadata filters (tenant plus any provided Filter entries). The detected
// language is carried in Lang, not added as a filter.
func BuildQueryPlan(ctx context.Context, q string, opt RetrieveOptions) QueryPlan { // ctx reserved for future pluggable detectors
	_ = ctx
	nq := normalizeQuery(q)
	lang := detectLang(nq)

	k := opt.K
	if k <= 0 {
		k = 10
	}
	if k > 1000 {
		k = 1000 // sanity cap to avoid runaway allocations
	}
	ftK, vecK := splitBudgets(k, opt)

	filters := make(map[string]string, maxWorkspaceFilters+2)
	added := 0
	for key, v := range opt.Filter {
		if added >= maxWorkspaceFilters {
			break
		}
		if v == "" {
			continue
		}
		filters[key] = v
		added++
	}
	if opt.Tenant != "" {
		filters["tenant"] = opt.Tenant
	}

	return QueryPlan{Query: nq, Lang: lang, FtK: ftK, VecK: vecK, Filters: filters, Tenant: opt.Tenant}
}

// normalizeQuery collapses runs of whitespace (including newlines and tabs)
// to single spaces and trims the ends. Case is preserved for display; the
// search backends themselves match case-insensitively.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func detectLang(_ string) string {
	// Placeholder: default to english until a detector is plugged in
	return "english"
}

func splitBudgets(k int, opt RetrieveOptions) (int, int) {
	// If explicit FtK/VecK provided, honor them but cap by k and ensure non-negative.
	if opt.FtK > 0 || opt.VecK > 0 {
		ft := opt.FtK
		vc := opt.VecK
		if ft < 0 {
			ft = 0
		}
		if vc < 0 {
			vc = 0
		}
		if ft+vc == 0 {
			ft = k
		}
		if ft > k {
			ft = k
		}
		if vc > k {
			vc = k
		}
		return ft, vc
	}
	// Derive from Alpha where Alpha is the weight on FTS.
	a := opt.Alpha
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	ft := int(math.Ceil(float64(k) * a))
	vc := k - ft
	if ft == 0 && k > 0 {
		ft = 1
		vc = k - 1
	}
	if vc == 0 && k > 0 && k > 1 { // ensure both sides represented for k>1
		vc = 1
		ft = k - 1
	}
	return ft, vc
}

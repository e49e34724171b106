// Package sqlguard is the two-gate safety layer in front of the executor:
// the invariant checker validates semantic and tenancy properties promised by
// the plan, and the sanitizer rejects anything that is not a single read-only
// SELECT. Both gates must pass before a query runs; AddSafetyWrapper then
// scopes the query to the requesting user and applies the row cap.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/finsightai/finsight/pkg/model"
)

const canonicalDateExpr = "coalesce(posted_datetime, date::timestamptz)"

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*drop\s+`),
	regexp.MustCompile(`;\s*delete\s+`),
	regexp.MustCompile(`;\s*update\s+`),
	regexp.MustCompile(`;\s*insert\s+`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`/\*[\s\S]*\*/`),
}

var merchantParamRe = regexp.MustCompile(`:m\d+|:merchant_\d+`)

// CheckInvariants validates sql against the invariants the plan carries.
// It returns nil when every invariant holds; otherwise an error of kind
// SQLInvariantFailed with suggested fixes for the repair round.
func CheckInvariants(sqlText string, params map[string]any, plan *model.Plan) *model.Error {
	s := strings.ToLower(sqlText)
	var errs []string
	var fixes []string

	if plan.HasInvariant(model.InvExcludePending) && !strings.Contains(s, "pending = false") {
		errs = append(errs, "missing 'pending = false' filter (required for accurate spending)")
		fixes = append(fixes, "AND pending = false")
	}

	if plan.HasInvariant(model.InvSpendAmountLtZero) && !hasSpendingFilter(s) {
		errs = append(errs, "missing spending amount filter (required for spending queries)")
		fixes = append(fixes, "AND (amount < 0 OR (amount > 0 AND category NOT IN ('Transfer', 'Deposit', 'Payroll')))")
	}

	if len(plan.Entities.Merchants) > 0 && plan.HasInvariant(model.InvMustFilterMerchant) && !hasMerchantFilter(s) {
		list := plan.Entities.Merchants
		shown := list
		if len(shown) > 3 {
			shown = shown[:3]
		}
		desc := strings.Join(shown, ", ")
		if len(list) > 3 {
			desc = fmt.Sprintf("%s, and %d more", desc, len(list)-3)
		}
		errs = append(errs, fmt.Sprintf("missing merchant filter for: %s", desc))
		fixes = append(fixes, "AND (LOWER(merchant_name) LIKE :m0 OR LOWER(name) LIKE :m0)")
	}

	if strings.Contains(s, "coalesce") && !strings.Contains(s, canonicalDateExpr) {
		errs = append(errs, "non-standard date coalesce (use 'COALESCE(posted_datetime, date::timestamptz)')")
		fixes = append(fixes, "COALESCE(posted_datetime, date::timestamptz)")
	}

	if !strings.Contains(s, "user_id") {
		errs = append(errs, "CRITICAL: missing user_id filter (security violation)")
		fixes = append(fixes, "AND user_id = :user_id")
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(s) {
			errs = append(errs, "potential SQL injection pattern detected")
			break
		}
	}

	if len(errs) > 0 {
		e := model.NewError(model.KindSQLInvariantFailed, "SQL invariant violations: %s", strings.Join(errs, "; "))
		e.Fixes = fixes
		return e
	}
	return nil
}

// Accepted spending-filter shapes: strict negative amounts, the flexible
// disjunction excluding transfer-like categories, or ABS(amount) display.
func hasSpendingFilter(s string) bool {
	return strings.Contains(s, "amount < 0") ||
		strings.Contains(s, "(amount < 0 or (amount > 0 and category not in") ||
		strings.Contains(s, "abs(amount)")
}

func hasMerchantFilter(s string) bool {
	if strings.Contains(s, "merchant_name") && strings.Contains(s, "like") {
		return true
	}
	if strings.Contains(s, "name") && strings.Contains(s, "like") {
		return true
	}
	return merchantParamRe.MatchString(s)
}

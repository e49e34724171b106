// Package profile assembles the bounded, cached, tenant-scoped financial
// snapshot every modeling request starts from. All queries bind user_id;
// collection caps are enforced in SQL; derived metrics are recomputed on
// every build and never persisted.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/finsightai/finsight/pkg/db"
	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/model"
)

// Builder builds profile packs with a process-wide TTL cache.
type Builder struct {
	q     db.Querier
	cache *cache
	now   func() time.Time
}

// New builds a Builder. ttl governs the pack cache; a nil clock means UTC
// now.
func New(q db.Querier, ttl time.Duration, now func() time.Time) *Builder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Builder{q: q, cache: newCache(ttl), now: now}
}

// intentClass collapses intents into the two cache classes: lightweight
// packs skip holdings, goals, assets and the expensive volatility window.
func intentClass(intent intents.Intent) string {
	if intent.Lightweight() {
		return "light"
	}
	return "full"
}

// Build returns the pack for (userID, intent class), from cache when fresh.
func (b *Builder) Build(ctx context.Context, userID string, intent intents.Intent) (*model.ProfilePack, error) {
	class := intentClass(intent)
	key := userID + "|" + class

	if pack, ok := b.cache.get(key); ok {
		slog.Debug("profile pack cache hit", "class", class)
		return pack, nil
	}

	pack, err := b.build(ctx, userID, class == "light")
	if err != nil {
		return nil, err
	}

	b.cache.put(key, pack)
	b.cache.sweep()
	return pack, nil
}

func (b *Builder) build(ctx context.Context, userID string, lightweight bool) (*model.ProfilePack, error) {
	pack := &model.ProfilePack{
		GeneratedAt: b.now().Format(time.RFC3339),
		Lightweight: lightweight,
	}

	core, err := b.loadUserCore(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user core: %w", err)
	}
	pack.UserCore = core

	if pack.Accounts, err = b.loadAccounts(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if pack.ManualLiabilities, err = b.loadLiabilities(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load liabilities: %w", err)
	}
	if pack.RecurringIncome, err = b.loadRecurringIncome(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load recurring income: %w", err)
	}
	if pack.Budgets, err = b.loadBudgets(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load budgets: %w", err)
	}
	if pack.RecentTxns, err = b.loadRecentTransactions(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load recent transactions: %w", err)
	}

	if !lightweight {
		if pack.ManualAssets, err = b.loadAssets(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to load assets: %w", err)
		}
		if pack.Goals, err = b.loadGoals(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to load goals: %w", err)
		}
		if pack.Holdings, err = b.loadHoldings(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to load holdings: %w", err)
		}
	}

	months, err := b.loadMonthlyCashflow(ctx, userID)
	if err != nil {
		slog.Warn("failed to load cashflow history, derived metrics degraded", "error", err)
		months = nil
	}

	pack.DerivedMetrics = ComputeDerivedMetrics(pack, months, lightweight)
	return pack, nil
}

// FirstName fetches just the user's first name, for conversational
// responses that never need a full pack.
func (b *Builder) FirstName(ctx context.Context, userID string) string {
	rows, err := b.q.Query(ctx,
		`SELECT first_name FROM users WHERE id = :user_id`,
		map[string]any{"user_id": userID})
	if err != nil || len(rows) == 0 {
		return ""
	}
	return asString(rows[0]["first_name"])
}

func (b *Builder) loadUserCore(ctx context.Context, userID string) (model.UserCore, error) {
	rows, err := b.q.Query(ctx, `SELECT u.id, u.first_name, u.last_name,
  d.age, d.life_stage, d.marital_status, d.dependents, d.household_income,
  t.filing_status, t.federal_rate, t.state_rate,
  p.risk_tolerance
FROM users u
LEFT JOIN user_demographics d ON d.user_id = u.id
LEFT JOIN tax_profile t ON t.user_id = u.id
LEFT JOIN user_preferences p ON p.user_id = u.id
WHERE u.id = :user_id`, map[string]any{"user_id": userID})
	if err != nil {
		return model.UserCore{}, err
	}

	core := model.UserCore{UserID: userID}
	if len(rows) == 0 {
		return core, nil
	}
	r := rows[0]
	core.FirstName = asString(r["first_name"])
	core.LastName = asString(r["last_name"])
	core.Age = asInt(r["age"])
	core.LifeStage = asString(r["life_stage"])
	core.MaritalStatus = asString(r["marital_status"])
	core.Dependents = asInt(r["dependents"])
	core.HouseholdIncome = asFloat(r["household_income"])
	core.FilingStatus = asString(r["filing_status"])
	core.FederalRate = asFloat(r["federal_rate"])
	core.StateRate = asFloat(r["state_rate"])
	core.RiskTolerance = asString(r["risk_tolerance"])
	return core, nil
}

func (b *Builder) loadAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT id, name, type, subtype, balance, available_balance, currency, is_active
FROM accounts
WHERE user_id = :user_id
ORDER BY balance DESC
LIMIT %d`, model.CapAccounts), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Account{
			ID:               asString(r["id"]),
			Name:             asString(r["name"]),
			Type:             asString(r["type"]),
			Subtype:          asString(r["subtype"]),
			Balance:          asFloat(r["balance"]),
			AvailableBalance: asFloat(r["available_balance"]),
			Currency:         asString(r["currency"]),
			IsActive:         asBool(r["is_active"]),
		})
	}
	return out, nil
}

func (b *Builder) loadLiabilities(ctx context.Context, userID string) ([]model.ManualLiability, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT id, name, liability_type, balance, interest_rate, minimum_payment
FROM manual_liabilities
WHERE user_id = :user_id
ORDER BY balance DESC
LIMIT %d`, model.CapLiabilities), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.ManualLiability, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ManualLiability{
			ID:             asString(r["id"]),
			Name:           asString(r["name"]),
			LiabilityType:  asString(r["liability_type"]),
			Balance:        asFloat(r["balance"]),
			InterestRate:   asFloat(r["interest_rate"]),
			MinimumPayment: asFloat(r["minimum_payment"]),
		})
	}
	return out, nil
}

func (b *Builder) loadAssets(ctx context.Context, userID string) ([]model.ManualAsset, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT id, name, asset_class, value
FROM manual_assets
WHERE user_id = :user_id
ORDER BY value DESC
LIMIT %d`, model.CapAssets), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.ManualAsset, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ManualAsset{
			ID:         asString(r["id"]),
			Name:       asString(r["name"]),
			AssetClass: asString(r["asset_class"]),
			Value:      asFloat(r["value"]),
		})
	}
	return out, nil
}

func (b *Builder) loadGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT id, name, target_amount, current_amount, target_date, is_active
FROM goals
WHERE user_id = :user_id AND is_active = true
ORDER BY target_date
LIMIT %d`, model.CapGoals), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.Goal, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Goal{
			ID:            asString(r["id"]),
			Name:          asString(r["name"]),
			TargetAmount:  asFloat(r["target_amount"]),
			CurrentAmount: asFloat(r["current_amount"]),
			TargetDate:    asString(r["target_date"]),
			IsActive:      asBool(r["is_active"]),
		})
	}
	return out, nil
}

func (b *Builder) loadHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT h.id, h.account_id, h.security_id, s.ticker, h.quantity, h.value, h.cost_basis
FROM holdings_current h
LEFT JOIN securities s ON s.id = h.security_id
WHERE h.user_id = :user_id
ORDER BY h.value DESC
LIMIT %d`, model.CapHoldings), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.Holding, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Holding{
			ID:         asString(r["id"]),
			AccountID:  asString(r["account_id"]),
			SecurityID: asString(r["security_id"]),
			Ticker:     asString(r["ticker"]),
			Quantity:   asFloat(r["quantity"]),
			Value:      asFloat(r["value"]),
			CostBasis:  asFloat(r["cost_basis"]),
		})
	}
	return out, nil
}

func (b *Builder) loadBudgets(ctx context.Context, userID string) ([]model.Budget, error) {
	rows, err := b.q.Query(ctx, `SELECT b.id, b.name, b.amount, b.period, c.category, c.amount AS category_amount
FROM budgets b
LEFT JOIN budget_categories c ON c.budget_id = b.id AND c.user_id = b.user_id
WHERE b.user_id = :user_id
ORDER BY b.id`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	byID := map[string]*model.Budget{}
	var order []string
	for _, r := range rows {
		id := asString(r["id"])
		budget, ok := byID[id]
		if !ok {
			budget = &model.Budget{
				ID:     id,
				Name:   asString(r["name"]),
				Amount: asFloat(r["amount"]),
				Period: asString(r["period"]),
			}
			byID[id] = budget
			order = append(order, id)
		}
		if category := asString(r["category"]); category != "" {
			budget.Categories = append(budget.Categories, model.BudgetCategory{
				Category: category,
				Amount:   asFloat(r["category_amount"]),
			})
		}
	}

	out := make([]model.Budget, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (b *Builder) loadRecurringIncome(ctx context.Context, userID string) ([]model.RecurringIncome, error) {
	rows, err := b.q.Query(ctx, `SELECT id, source, gross_monthly, frequency, next_date
FROM recurring_income
WHERE user_id = :user_id
ORDER BY gross_monthly DESC`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.RecurringIncome, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RecurringIncome{
			ID:           asString(r["id"]),
			Source:       asString(r["source"]),
			GrossMonthly: asFloat(r["gross_monthly"]),
			Frequency:    asString(r["frequency"]),
			NextDate:     asString(r["next_date"]),
		})
	}
	return out, nil
}

func (b *Builder) loadRecentTransactions(ctx context.Context, userID string) ([]model.RecentTransaction, error) {
	rows, err := b.q.Query(ctx, fmt.Sprintf(`SELECT id, date, merchant_name, name, amount, category, pending
FROM transactions
WHERE user_id = :user_id
ORDER BY COALESCE(posted_datetime, date::timestamptz) DESC
LIMIT %d`, model.CapRecentTxns), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]model.RecentTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RecentTransaction{
			ID:           asString(r["id"]),
			Date:         asString(r["date"]),
			MerchantName: asString(r["merchant_name"]),
			Name:         asString(r["name"]),
			Amount:       asFloat(r["amount"]),
			Category:     asString(r["category"]),
			Pending:      asBool(r["pending"]),
		})
	}
	return out, nil
}

// MonthlyCashflow is one month of grouped income and expenses.
type MonthlyCashflow struct {
	Month    string
	Income   float64
	Expenses float64
}

func (b *Builder) loadMonthlyCashflow(ctx context.Context, userID string) ([]MonthlyCashflow, error) {
	since := b.now().AddDate(0, -12, 0).Format("2006-01-02")
	rows, err := b.q.Query(ctx, `SELECT date_trunc('month', COALESCE(posted_datetime, date::timestamptz)) AS month,
  SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END) AS income,
  SUM(CASE WHEN amount < 0 THEN ABS(amount) ELSE 0 END) AS expenses
FROM transactions
WHERE user_id = :user_id
  AND pending = false
  AND COALESCE(posted_datetime, date::timestamptz) >= :since
GROUP BY 1
ORDER BY 1 DESC`, map[string]any{"user_id": userID, "since": since})
	if err != nil {
		return nil, err
	}

	out := make([]MonthlyCashflow, 0, len(rows))
	for _, r := range rows {
		out = append(out, MonthlyCashflow{
			Month:    asString(r["month"]),
			Income:   asFloat(r["income"]),
			Expenses: asFloat(r["expenses"]),
		})
	}
	return out, nil
}

// ComputeDerivedMetrics derives the cashflow and balance-sheet figures from
// the loaded collections. months must be ordered newest first. Lightweight
// packs use a 3-month volatility window and skip nothing else; missing
// history degrades to zeros.
func ComputeDerivedMetrics(pack *model.ProfilePack, months []MonthlyCashflow, lightweight bool) model.DerivedMetrics {
	var dm model.DerivedMetrics

	for _, a := range pack.Accounts {
		if a.IsActive {
			dm.TotalAssets += a.Balance
		}
	}
	for _, a := range pack.ManualAssets {
		dm.TotalAssets += a.Value
	}
	for _, l := range pack.ManualLiabilities {
		dm.TotalLiabilities += l.Balance
	}
	dm.NetWorth = dm.TotalAssets - dm.TotalLiabilities

	dm.MonthlyIncomeAvg = avgIncome(months, 3)
	dm.MonthlyExpensesAvg = avgExpenses(months, 3)

	dm.SavingsRate3M = savingsRate(months, 3)
	dm.SavingsRate6M = savingsRate(months, 6)
	dm.SavingsRate12M = savingsRate(months, 12)

	if dm.MonthlyExpensesAvg > 0 {
		liquid := 0.0
		for _, a := range pack.Accounts {
			if a.IsActive && (a.Type == "depository" || a.Type == "cash" || a.Subtype == "checking" || a.Subtype == "savings") {
				liquid += a.Balance
			}
		}
		dm.LiquidReservesMonths = round2(liquid / dm.MonthlyExpensesAvg)
	}

	if dm.MonthlyIncomeAvg > 0 {
		monthlyDebt := 0.0
		for _, l := range pack.ManualLiabilities {
			monthlyDebt += l.MinimumPayment
		}
		dm.DebtToIncome = round2(monthlyDebt / dm.MonthlyIncomeAvg)
	}

	window := 6
	if lightweight {
		window = 3
	}
	dm.IncomeVolatility = volatility(months, window, func(m MonthlyCashflow) float64 { return m.Income })
	dm.SpendingVolatility = volatility(months, window, func(m MonthlyCashflow) float64 { return m.Expenses })

	return dm
}

func avgIncome(months []MonthlyCashflow, n int) float64 {
	if len(months) == 0 {
		return 0
	}
	if n > len(months) {
		n = len(months)
	}
	sum := 0.0
	for _, m := range months[:n] {
		sum += m.Income
	}
	return round2(sum / float64(n))
}

func avgExpenses(months []MonthlyCashflow, n int) float64 {
	if len(months) == 0 {
		return 0
	}
	if n > len(months) {
		n = len(months)
	}
	sum := 0.0
	for _, m := range months[:n] {
		sum += m.Expenses
	}
	return round2(sum / float64(n))
}

// savingsRate over the trailing n months: (income − expenses) / income as a
// percentage.
func savingsRate(months []MonthlyCashflow, n int) float64 {
	if len(months) == 0 {
		return 0
	}
	if n > len(months) {
		n = len(months)
	}
	income, expenses := 0.0, 0.0
	for _, m := range months[:n] {
		income += m.Income
		expenses += m.Expenses
	}
	if income <= 0 {
		return 0
	}
	return round2((income - expenses) / income * 100)
}

// volatility is the coefficient of variation over the window, as a 0-1
// score.
func volatility(months []MonthlyCashflow, window int, value func(MonthlyCashflow) float64) float64 {
	if len(months) < 2 {
		return 0
	}
	if window > len(months) {
		window = len(months)
	}

	values := make([]float64, 0, window)
	sum := 0.0
	for _, m := range months[:window] {
		v := value(m)
		values = append(values, v)
		sum += v
	}
	meanV := sum / float64(len(values))
	if meanV <= 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		d := v - meanV
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(values)))
	return round2(stdev / meanV)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package profile

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/model"
)

const testUser = "4f9a0cf2-95ee-41f0-bc28-cdd0e2a184b3"

type fakeQuerier struct {
	mu      sync.Mutex
	calls   int
	results map[string][]map[string]any
	params  []map[string]any
}

func (f *fakeQuerier) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.params = append(f.params, params)
	f.mu.Unlock()

	for needle, rows := range f.results {
		if strings.Contains(query, needle) {
			return rows, nil
		}
	}
	return nil, nil
}

func fullResults() map[string][]map[string]any {
	return map[string][]map[string]any{
		"FROM users u": {{
			"id": testUser, "first_name": "Devin", "last_name": "T",
			"age": int64(35), "life_stage": "mid_career", "marital_status": "single",
			"dependents": int64(0), "household_income": "120000",
			"filing_status": "single", "federal_rate": "0.22", "state_rate": "0.05",
			"risk_tolerance": "moderate",
		}},
		"FROM accounts": {
			{"id": "a1", "name": "Checking", "type": "depository", "subtype": "checking",
				"balance": "42000.10", "is_active": true},
			{"id": "a2", "name": "Savings", "type": "depository", "subtype": "savings",
				"balance": "20432.50", "is_active": true},
		},
		"FROM manual_liabilities": {
			{"id": "l1", "name": "Card", "liability_type": "credit", "balance": "8000",
				"interest_rate": "0.22", "minimum_payment": "200"},
		},
		"FROM manual_assets": {
			{"id": "m1", "name": "Car", "asset_class": "vehicle", "value": "15000"},
		},
		"FROM goals": {
			{"id": "g1", "name": "House", "target_amount": "100000", "current_amount": "20000",
				"target_date": "2030-01-01", "is_active": true},
		},
		"date_trunc": {
			{"month": "2025-09-01", "income": "8000", "expenses": "5000"},
			{"month": "2025-08-01", "income": "8000", "expenses": "5200"},
			{"month": "2025-07-01", "income": "8000", "expenses": "4800"},
			{"month": "2025-06-01", "income": "7000", "expenses": "5100"},
		},
	}
}

func TestBuild_FullPack(t *testing.T) {
	q := &fakeQuerier{results: fullResults()}
	b := New(q, time.Hour, nil)

	pack, err := b.Build(context.Background(), testUser, intents.RetirementPlanning)
	require.NoError(t, err)

	assert.Equal(t, "Devin", pack.UserCore.FirstName)
	assert.Equal(t, 35, pack.UserCore.Age)
	assert.InDelta(t, 0.22, pack.UserCore.FederalRate, 0.001)
	assert.Len(t, pack.Accounts, 2)
	assert.Len(t, pack.ManualLiabilities, 1)
	assert.Len(t, pack.ManualAssets, 1)
	assert.Len(t, pack.Goals, 1)
	assert.False(t, pack.Lightweight)

	dm := pack.DerivedMetrics
	assert.InDelta(t, 42000.10+20432.50+15000, dm.TotalAssets, 0.01)
	assert.InDelta(t, 8000, dm.TotalLiabilities, 0.01)
	assert.InDelta(t, dm.TotalAssets-8000, dm.NetWorth, 0.01)
	assert.InDelta(t, 8000, dm.MonthlyIncomeAvg, 0.01)
	assert.InDelta(t, 5000, dm.MonthlyExpensesAvg, 0.01)
	assert.Greater(t, dm.SavingsRate3M, 0.0)
	assert.Greater(t, dm.LiquidReservesMonths, 0.0)
}

func TestBuild_LightweightSkipsHeavyCollections(t *testing.T) {
	q := &fakeQuerier{results: fullResults()}
	b := New(q, time.Hour, nil)

	pack, err := b.Build(context.Background(), testUser, intents.BalanceLookup)
	require.NoError(t, err)

	assert.True(t, pack.Lightweight)
	assert.Empty(t, pack.Holdings)
	assert.Empty(t, pack.Goals)
	assert.Empty(t, pack.ManualAssets)
	assert.Len(t, pack.Accounts, 2)
}

func TestBuild_CacheHit(t *testing.T) {
	q := &fakeQuerier{results: fullResults()}
	b := New(q, time.Hour, nil)

	_, err := b.Build(context.Background(), testUser, intents.BalanceLookup)
	require.NoError(t, err)
	callsAfterFirst := q.calls

	_, err = b.Build(context.Background(), testUser, intents.BalanceLookup)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, q.calls, "second build must come from cache")
}

func TestBuild_CacheKeyedByIntentClass(t *testing.T) {
	q := &fakeQuerier{results: fullResults()}
	b := New(q, time.Hour, nil)

	_, err := b.Build(context.Background(), testUser, intents.BalanceLookup)
	require.NoError(t, err)
	callsAfterFirst := q.calls

	// A full-class intent must rebuild
	_, err = b.Build(context.Background(), testUser, intents.RetirementPlanning)
	require.NoError(t, err)
	assert.Greater(t, q.calls, callsAfterFirst)
}

func TestBuild_EveryQueryBindsUser(t *testing.T) {
	q := &fakeQuerier{results: fullResults()}
	b := New(q, time.Hour, nil)

	_, err := b.Build(context.Background(), testUser, intents.RetirementPlanning)
	require.NoError(t, err)

	for _, params := range q.params {
		assert.Equal(t, testUser, params["user_id"], "every profile query is tenant-scoped")
	}
}

func TestComputeDerivedMetrics_EmptyHistory(t *testing.T) {
	pack := &model.ProfilePack{}
	dm := ComputeDerivedMetrics(pack, nil, false)
	assert.Zero(t, dm.MonthlyIncomeAvg)
	assert.Zero(t, dm.SavingsRate3M)
	assert.Zero(t, dm.IncomeVolatility)
}

func TestComputeDerivedMetrics_SavingsRateWindows(t *testing.T) {
	months := []MonthlyCashflow{
		{Month: "2025-09", Income: 10000, Expenses: 5000},
		{Month: "2025-08", Income: 10000, Expenses: 5000},
		{Month: "2025-07", Income: 10000, Expenses: 5000},
		{Month: "2025-06", Income: 10000, Expenses: 10000},
		{Month: "2025-05", Income: 10000, Expenses: 10000},
		{Month: "2025-04", Income: 10000, Expenses: 10000},
	}
	dm := ComputeDerivedMetrics(&model.ProfilePack{}, months, false)
	assert.Equal(t, 50.0, dm.SavingsRate3M)
	assert.Equal(t, 25.0, dm.SavingsRate6M)
}

func TestFirstName(t *testing.T) {
	q := &fakeQuerier{results: map[string][]map[string]any{
		"first_name FROM users": {{"first_name": "Devin"}},
	}}
	b := New(q, time.Hour, nil)
	assert.Equal(t, "Devin", b.FirstName(context.Background(), testUser))
}

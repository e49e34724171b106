package search

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T) func() time.Time {
	t.Helper()
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

const testUser = "4f9a0cf2-95ee-41f0-bc28-cdd0e2a184b3"

func TestBuild_MerchantSearch(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("what have i been spending at trader joes", testUser)

	assert.Contains(t, sql, "pending = false")
	assert.Contains(t, sql, "amount < 0")
	assert.Contains(t, sql, "(LOWER(merchant_name) LIKE :m0 OR LOWER(name) LIKE :m0)")
	assert.Equal(t, "%trader joe%", params["m0"])
	assert.Equal(t, testUser, params["user_id"])
	assert.Contains(t, sql, "ORDER BY COALESCE(posted_datetime, date::timestamptz) DESC")
	assert.True(t, strings.HasSuffix(sql, "LIMIT 100"))
}

func TestBuild_AlwaysFiltersUser(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("show me my transactions", testUser)
	assert.Contains(t, sql, "user_id = :user_id")
	assert.Equal(t, testUser, params["user_id"])
}

func TestBuild_PendingIncludedWhenAsked(t *testing.T) {
	b := New(fixedClock(t))
	sql, _ := b.Build("show my pending transactions", testUser)
	assert.NotContains(t, sql, "pending = false")
}

func TestBuild_IncomeDirection(t *testing.T) {
	b := New(fixedClock(t))
	sql, _ := b.Build("deposits received this month", testUser)
	assert.Contains(t, sql, "amount > 0")
	assert.NotContains(t, sql, "amount < 0")
}

func TestBuild_AmountOver(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("purchases over $100", testUser)

	// Expenses are stored negative, so "over 100" means amount < -100
	assert.Contains(t, sql, "amount < :")
	found := false
	for name, v := range params {
		if strings.HasPrefix(name, "a") && v == -100.0 {
			found = true
		}
	}
	assert.True(t, found, "expected a negated amount parameter, got %v", params)
}

func TestBuild_AmountBetween(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("spending between $50 and $150", testUser)
	assert.Contains(t, sql, "BETWEEN")
	assert.Equal(t, -150.0, params["amin0"])
	assert.Equal(t, -50.0, params["amax0"])
}

func TestBuild_CategoryFilter(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("groceries spending", testUser)
	assert.Contains(t, sql, "LOWER(category) LIKE")
	assert.Contains(t, sql, "LOWER(pfc_primary) LIKE")

	hasGroceries := false
	for _, v := range params {
		if v == "%groceries%" {
			hasGroceries = true
		}
	}
	assert.True(t, hasGroceries)
}

func TestBuild_CoffeeAliasExpands(t *testing.T) {
	b := New(fixedClock(t))
	_, params := b.Build("how much on coffee", testUser)

	var merchants []string
	for name, v := range params {
		if strings.HasPrefix(name, "m") && name != "user_id" {
			merchants = append(merchants, v.(string))
		}
	}
	assert.Contains(t, merchants, "%starbucks%")
	assert.Contains(t, merchants, "%dunkin%")
}

func TestExtractWindow_LastMonth(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	start, end, ok := ExtractWindow("How much did I spend last month?", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), end)
}

func TestExtractWindow_LastNDays(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	start, end, ok := ExtractWindow("spending in the last 30 days", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 8, 16, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestExtractWindow_NamedMonthInPast(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	start, end, ok := ExtractWindow("how much did I spend in december", now)
	require.True(t, ok)
	assert.Equal(t, 2024, start.Year())
	assert.Equal(t, time.December, start.Month())
	assert.Equal(t, 31, end.Day())
}

func TestExtractWindow_NoneNamed(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	_, _, ok := ExtractWindow("how much did I spend", now)
	assert.False(t, ok)
}

func TestBuild_DateWindowAppearsInSQL(t *testing.T) {
	b := New(fixedClock(t))
	sql, params := b.Build("what did i spend last month", testUser)
	assert.Contains(t, sql, "COALESCE(posted_datetime, date::timestamptz) >= :start_date")
	assert.Contains(t, sql, "COALESCE(posted_datetime, date::timestamptz) <= :end_date")
	assert.Equal(t, "2025-08-01", params["start_date"])
	assert.Equal(t, "2025-08-31", params["end_date"])
}

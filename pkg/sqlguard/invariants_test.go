package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/model"
)

func spendingPlan(merchants ...string) *model.Plan {
	p := &model.Plan{
		Intent: intents.SpendByTime,
		Entities: model.Entities{
			Merchants: merchants,
		},
		Invariants: []string{model.InvExcludePending, model.InvSpendAmountLtZero},
	}
	if len(merchants) > 0 {
		p.Invariants = append(p.Invariants, model.InvMustFilterMerchant)
	}
	return p
}

const goodSpendSQL = `SELECT SUM(ABS(amount)) FROM transactions
WHERE user_id = :user_id AND amount < 0 AND pending = false
AND COALESCE(posted_datetime, date::timestamptz) >= :start_date`

func TestCheckInvariants_Passes(t *testing.T) {
	assert.Nil(t, CheckInvariants(goodSpendSQL, nil, spendingPlan()))
}

func TestCheckInvariants_MissingPendingFilter(t *testing.T) {
	sql := "SELECT SUM(ABS(amount)) FROM transactions WHERE user_id = :user_id AND amount < 0"
	err := CheckInvariants(sql, nil, spendingPlan())
	require.NotNil(t, err)
	assert.Equal(t, model.KindSQLInvariantFailed, err.Kind)
	assert.Contains(t, err.Msg, "pending = false")
	assert.Contains(t, err.Fixes, "AND pending = false")
}

func TestCheckInvariants_MissingSpendFilter(t *testing.T) {
	sql := "SELECT SUM(amount) FROM transactions WHERE user_id = :user_id AND pending = false"
	err := CheckInvariants(sql, nil, spendingPlan())
	require.NotNil(t, err)
	assert.Contains(t, err.Msg, "spending amount filter")
}

func TestCheckInvariants_AcceptsFlexibleSpendForms(t *testing.T) {
	flexible := "SELECT SUM(amount) FROM transactions WHERE user_id = :user_id AND pending = false AND (amount < 0 OR (amount > 0 AND category NOT IN ('Transfer')))"
	assert.Nil(t, CheckInvariants(flexible, nil, spendingPlan()))

	absForm := "SELECT SUM(ABS(amount)) FROM transactions WHERE user_id = :user_id AND pending = false"
	assert.Nil(t, CheckInvariants(absForm, nil, spendingPlan()))
}

func TestCheckInvariants_MerchantFilterRequired(t *testing.T) {
	sql := "SELECT SUM(ABS(amount)) FROM transactions WHERE user_id = :user_id AND amount < 0 AND pending = false"
	err := CheckInvariants(sql, nil, spendingPlan("trader joe"))
	require.NotNil(t, err)
	assert.Contains(t, err.Msg, "merchant filter")
	assert.Contains(t, err.Msg, "trader joe")
}

func TestCheckInvariants_MerchantFilterSatisfied(t *testing.T) {
	sql := goodSpendSQL + " AND (LOWER(merchant_name) LIKE :m0 OR LOWER(name) LIKE :m0)"
	assert.Nil(t, CheckInvariants(sql, nil, spendingPlan("trader joe")))
}

func TestCheckInvariants_NonCanonicalCoalesce(t *testing.T) {
	sql := "SELECT * FROM transactions WHERE user_id = :user_id AND amount < 0 AND pending = false AND COALESCE(posted_datetime, date) >= :start"
	err := CheckInvariants(sql, nil, spendingPlan())
	require.NotNil(t, err)
	assert.Contains(t, err.Msg, "coalesce")
}

func TestCheckInvariants_MissingUserIDIsCritical(t *testing.T) {
	sql := "SELECT SUM(ABS(amount)) FROM transactions WHERE amount < 0 AND pending = false"
	err := CheckInvariants(sql, nil, spendingPlan())
	require.NotNil(t, err)
	assert.Contains(t, err.Msg, "CRITICAL")
}

func TestCheckInvariants_InjectionPatterns(t *testing.T) {
	sql := goodSpendSQL + "; drop table users"
	err := CheckInvariants(sql, nil, spendingPlan())
	require.NotNil(t, err)
	assert.Contains(t, err.Msg, "injection")
}

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind_Basic(t *testing.T) {
	query, args, err := Rebind(
		"SELECT * FROM accounts WHERE user_id = :user_id AND balance > :min",
		map[string]any{"user_id": "u1", "min": 100})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM accounts WHERE user_id = $1 AND balance > $2", query)
	assert.Equal(t, []any{"u1", 100}, args)
}

func TestRebind_PreservesCasts(t *testing.T) {
	query, args, err := Rebind(
		"SELECT COALESCE(posted_datetime, date::timestamptz) FROM transactions WHERE user_id = :user_id",
		map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Contains(t, query, "date::timestamptz")
	assert.Len(t, args, 1)
}

func TestRebind_RepeatedParameterBindsOnce(t *testing.T) {
	query, args, err := Rebind(
		"SELECT * FROM t WHERE user_id = :uid AND (LOWER(merchant_name) LIKE :m0 OR LOWER(name) LIKE :m0)",
		map[string]any{"uid": "u1", "m0": "%trader joe%"})
	require.NoError(t, err)
	assert.Contains(t, query, "LIKE $2 OR LOWER(name) LIKE $2")
	assert.Len(t, args, 2)
}

func TestRebind_MissingParameter(t *testing.T) {
	_, _, err := Rebind("SELECT * FROM t WHERE user_id = :user_id", map[string]any{})
	assert.Error(t, err)
}

func TestRebind_IgnoresQuotedColons(t *testing.T) {
	query, args, err := Rebind(
		"SELECT * FROM t WHERE note = ':not_a_param' AND user_id = :user_id",
		map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Contains(t, query, "':not_a_param'")
	assert.Len(t, args, 1)
}

func TestSerialize(t *testing.T) {
	assert.Nil(t, Serialize(nil))
	assert.Equal(t, 62432.60, Serialize([]byte("62432.60")))
	assert.Equal(t, 42.0, Serialize(int64(42)))
}

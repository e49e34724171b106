package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Formatting(t *testing.T) {
	e := NewError(KindSQLUnsafe, "dangerous keyword '%s' detected", "DROP")
	assert.Contains(t, e.Error(), "sql_unsafe")
	assert.Contains(t, e.Error(), "DROP")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := WrapError(KindSQLExecutionFailed, cause, "query failed")
	assert.ErrorIs(t, e, cause)
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, NewError(KindSQLInvariantFailed, "x").Retryable())
	assert.True(t, NewError(KindSQLExecutionFailed, "x").Retryable())
	assert.False(t, NewError(KindSQLUnsafe, "x").Retryable())
	assert.False(t, NewError(KindModelingFailed, "x").Retryable())
	assert.False(t, NewError(KindUpstreamTimeout, "x").Retryable())
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	typed := NewError(KindInputInvalid, "bad")
	assert.Same(t, typed, AsError(typed))

	wrapped := AsError(fmt.Errorf("plain failure"))
	assert.Equal(t, KindInternal, wrapped.Kind)
}

func TestPlan_Invariants(t *testing.T) {
	p := &Plan{}
	assert.False(t, p.HasInvariant(InvExcludePending))

	p.AddInvariant(InvExcludePending)
	p.AddInvariant(InvExcludePending)
	assert.True(t, p.HasInvariant(InvExcludePending))
	assert.Len(t, p.Invariants, 1)
}

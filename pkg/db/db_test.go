package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceQuerier struct {
	rows []map[string]any
	err  error
}

func (s *sliceQuerier) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return s.rows, s.err
}

func TestExecuteSafe_RowCap(t *testing.T) {
	var rows []map[string]any
	for i := 0; i < 50; i++ {
		rows = append(rows, map[string]any{"amount": float64(i), "category": "x"})
	}

	result, err := ExecuteSafe(context.Background(), &sliceQuerier{rows: rows}, "SELECT ...", nil, 10)
	require.Nil(t, err)
	assert.Equal(t, 10, result.RowCount)
	assert.Len(t, result.Rows, 10)
	assert.ElementsMatch(t, []string{"amount", "category"}, result.Columns)
}

func TestExecuteSafe_EmptyResult(t *testing.T) {
	result, err := ExecuteSafe(context.Background(), &sliceQuerier{}, "SELECT ...", nil, 10)
	require.Nil(t, err)
	assert.Equal(t, 0, result.RowCount)
}

func TestExecuteSafe_ExecutionError(t *testing.T) {
	q := &sliceQuerier{err: fmt.Errorf("relation does not exist")}
	_, err := ExecuteSafe(context.Background(), q, "SELECT ...", nil, 10)
	require.NotNil(t, err)
	assert.True(t, err.Retryable())
}

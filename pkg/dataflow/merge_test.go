package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeTables() (*Table, *Table) {
	left := NewTableFromRecords([]map[string]any{
		{"id": 1, "name": "alpha"},
		{"id": 2, "name": "beta"},
		{"id": 3, "name": "gamma"},
	})
	right := NewTableFromRecords([]map[string]any{
		{"id": 2, "score": 20},
		{"id": 3, "score": 30},
		{"id": 4, "score": 40},
	})
	return left, right
}

func TestApplyMergeInner(t *testing.T) {
	left, right := mergeTables()

	table, err := applyMerge(left, right, map[string]any{"on": "id"})
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, []string{"id", "name", "score"}, table.ColumnNames())
	assert.Equal(t, Row{"id": 2, "name": "beta", "score": 20}, table.Row(0))
	assert.Equal(t, Row{"id": 3, "name": "gamma", "score": 30}, table.Row(1))
}

func TestApplyMergeLeft(t *testing.T) {
	left, right := mergeTables()

	table, err := applyMerge(left, right, map[string]any{"how": "left", "on": "id"})
	require.NoError(t, err)

	require.Equal(t, 3, table.NumRows())
	assert.Equal(t, Row{"id": 1, "name": "alpha", "score": nil}, table.Row(0))
	assert.Equal(t, Row{"id": 2, "name": "beta", "score": 20}, table.Row(1))
}

func TestApplyMergeRightPreservesRightOrder(t *testing.T) {
	left, right := mergeTables()

	table, err := applyMerge(left, right, map[string]any{"how": "right", "on": "id"})
	require.NoError(t, err)

	require.Equal(t, 3, table.NumRows())
	assert.Equal(t, Row{"id": 2, "name": "beta", "score": 20}, table.Row(0))
	assert.Equal(t, Row{"id": 3, "name": "gamma", "score": 30}, table.Row(1))
	assert.Equal(t, Row{"id": 4, "name": nil, "score": 40}, table.Row(2))
}

func TestApplyMergeOuter(t *testing.T) {
	left, right := mergeTables()

	table, err := applyMerge(left, right, map[string]any{"how": "outer", "on": "id"})
	require.NoError(t, err)

	require.Equal(t, 4, table.NumRows())
	// Left rows first in left order, then unmatched right rows.
	assert.Equal(t, Row{"id": 1, "name": "alpha", "score": nil}, table.Row(0))
	assert.Equal(t, Row{"id": 4, "name": nil, "score": 40}, table.Row(3))
}

func TestApplyMergeIndependentKeys(t *testing.T) {
	left := NewTableFromRecords([]map[string]any{
		{"user": "u1", "total": 5},
	})
	right := NewTableFromRecords([]map[string]any{
		{"account": "u1", "plan": "pro"},
	})

	table, err := applyMerge(left, right, map[string]any{"left_on": "user", "right_on": "account"})
	require.NoError(t, err)

	require.Equal(t, 1, table.NumRows())
	// Independent keys both survive in the output.
	assert.Equal(t, Row{"user": "u1", "total": 5, "account": "u1", "plan": "pro"}, table.Row(0))
}

func TestApplyMergeSuffixes(t *testing.T) {
	left := NewTableFromRecords([]map[string]any{
		{"id": 1, "value": "left"},
	})
	right := NewTableFromRecords([]map[string]any{
		{"id": 1, "value": "right"},
	})

	table, err := applyMerge(left, right, map[string]any{"on": "id"})
	require.NoError(t, err)
	require.Equal(t, 1, table.NumRows())
	assert.Equal(t, Row{"id": 1, "value_x": "left", "value_y": "right"}, table.Row(0))

	custom, err := applyMerge(left, right, map[string]any{
		"on":       "id",
		"suffixes": []any{"_a", "_b"},
	})
	require.NoError(t, err)
	assert.Equal(t, Row{"id": 1, "value_a": "left", "value_b": "right"}, custom.Row(0))
}

func TestApplyMergePositional(t *testing.T) {
	left := NewTableFromRecords([]map[string]any{
		{"a": 1}, {"a": 2}, {"a": 3},
	})
	right := NewTableFromRecords([]map[string]any{
		{"b": 10}, {"b": 20},
	})

	inner, err := applyMerge(left, right, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, 2, inner.NumRows())
	assert.Equal(t, Row{"a": 1, "b": 10}, inner.Row(0))

	outer, err := applyMerge(left, right, map[string]any{"how": "outer"})
	require.NoError(t, err)
	require.Equal(t, 3, outer.NumRows())
	assert.Equal(t, Row{"a": 3, "b": nil}, outer.Row(2))
}

func TestApplyMergeSelfJoinRoundTrip(t *testing.T) {
	keys := NewTableFromRecords([]map[string]any{
		{"id": 1}, {"id": 2}, {"id": 3},
	})

	table, err := applyMerge(keys, keys, map[string]any{"on": "id"})
	require.NoError(t, err)

	// Joining a key table with itself on its key changes nothing.
	assert.Equal(t, keys.NumRows(), table.NumRows())
	assert.Equal(t, []string{"id"}, table.ColumnNames())
	assert.Equal(t, keys.Rows(), table.Rows())
}

func TestApplyMergeErrors(t *testing.T) {
	left, right := mergeTables()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{
			name:    "invalid how",
			config:  map[string]any{"how": "cross", "on": "id"},
			wantErr: `invalid merge how "cross"`,
		},
		{
			name:    "unknown left key",
			config:  map[string]any{"on": "ghost"},
			wantErr: `merge key "ghost" not found in left input`,
		},
		{
			name:    "left_on without right_on",
			config:  map[string]any{"left_on": "id"},
			wantErr: "requires both left_on and right_on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyMerge(left, right, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

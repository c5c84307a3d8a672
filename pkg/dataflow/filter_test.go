package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterInput() *Table {
	return NewTableFromRecords([]map[string]any{
		{"name": "alpha", "score": 1},
		{"name": "beta", "score": 2},
		{"name": "gamma", "score": 3},
		{"name": "delta", "score": 4},
	})
}

func TestApplyFilter(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]any
		wantMask Mask
	}{
		{
			name:     "gt",
			config:   map[string]any{"field": "score", "condition": "gt", "value": 2},
			wantMask: Mask{false, false, true, true},
		},
		{
			name:     "gte",
			config:   map[string]any{"field": "score", "condition": "gte", "value": 2},
			wantMask: Mask{false, true, true, true},
		},
		{
			name:     "lt",
			config:   map[string]any{"field": "score", "condition": "lt", "value": 2},
			wantMask: Mask{true, false, false, false},
		},
		{
			name:     "eq",
			config:   map[string]any{"field": "name", "condition": "eq", "value": "beta"},
			wantMask: Mask{false, true, false, false},
		},
		{
			name:     "neq",
			config:   map[string]any{"field": "name", "condition": "neq", "value": "beta"},
			wantMask: Mask{true, false, true, true},
		},
		{
			name:     "eq across numeric representations",
			config:   map[string]any{"field": "score", "condition": "eq", "value": 2.0},
			wantMask: Mask{false, true, false, false},
		},
		{
			name:     "in",
			config:   map[string]any{"field": "name", "condition": "in", "value": []any{"alpha", "delta"}},
			wantMask: Mask{true, false, false, true},
		},
		{
			name:     "nin",
			config:   map[string]any{"field": "name", "condition": "nin", "value": []any{"alpha", "delta"}},
			wantMask: Mask{false, true, true, false},
		},
		{
			name:     "range is inclusive",
			config:   map[string]any{"field": "score", "condition": "range", "value1": 2, "value2": 3},
			wantMask: Mask{false, true, true, false},
		},
		{
			name:     "contains",
			config:   map[string]any{"field": "name", "condition": "contains", "value": "et"},
			wantMask: Mask{false, true, false, false},
		},
		{
			name:     "startswith",
			config:   map[string]any{"field": "name", "condition": "startswith", "value": "d"},
			wantMask: Mask{false, false, false, true},
		},
		{
			name:     "value1 accepted as the operand",
			config:   map[string]any{"field": "score", "condition": "gt", "value1": 3},
			wantMask: Mask{false, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask, output, err := applyFilter(filterInput(), tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMask, mask)
			assert.Equal(t, len(mask.trueIndices()), output.NumRows())
		})
	}
}

func TestApplyFilterIdempotent(t *testing.T) {
	config := map[string]any{"field": "score", "condition": "gte", "value": 3}

	_, once, err := applyFilter(filterInput(), config)
	require.NoError(t, err)
	_, twice, err := applyFilter(once, config)
	require.NoError(t, err)

	assert.Equal(t, once.Rows(), twice.Rows())
}

func TestApplyFilterNullEquality(t *testing.T) {
	input := NewTableFromRecords([]map[string]any{
		{"name": "alpha", "score": nil},
		{"name": "beta", "score": 2},
	})

	// eq/neq without an operand compare against null explicitly.
	mask, _, err := applyFilter(input, map[string]any{"field": "score", "condition": "eq"})
	require.NoError(t, err)
	assert.Equal(t, Mask{true, false}, mask)

	mask, _, err = applyFilter(input, map[string]any{"field": "score", "condition": "neq"})
	require.NoError(t, err)
	assert.Equal(t, Mask{false, true}, mask)
}

func TestApplyFilterErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{
			name:    "missing field",
			config:  map[string]any{"condition": "gt", "value": 1},
			wantErr: "filter requires a field",
		},
		{
			name:    "unknown column",
			config:  map[string]any{"field": "ghost", "condition": "gt", "value": 1},
			wantErr: `filter field "ghost" not found`,
		},
		{
			name:    "unknown condition",
			config:  map[string]any{"field": "score", "condition": "between", "value": 1},
			wantErr: `invalid filter condition "between"`,
		},
		{
			name:    "range missing second operand",
			config:  map[string]any{"field": "score", "condition": "range", "value1": 1},
			wantErr: "range filter requires two operands",
		},
		{
			name:    "gt missing operand",
			config:  map[string]any{"field": "score", "condition": "gt"},
			wantErr: "filter requires a value",
		},
		{
			name:    "contains missing operand",
			config:  map[string]any{"field": "name", "condition": "contains"},
			wantErr: "filter requires a value",
		},
		{
			name:    "in missing operand",
			config:  map[string]any{"field": "name", "condition": "in"},
			wantErr: "filter requires a value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := applyFilter(filterInput(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var configErr *ConfigError
			assert.ErrorAs(t, err, &configErr)
		})
	}
}

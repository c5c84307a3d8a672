package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupInput() *Table {
	return NewTableFromRecords([]map[string]any{
		{"region": "west", "product": "a", "sales": 10, "rating": 4.0},
		{"region": "east", "product": "a", "sales": 20, "rating": 3.0},
		{"region": "west", "product": "b", "sales": 30, "rating": 5.0},
		{"region": "east", "product": "b", "sales": 40, "rating": 2.0},
		{"region": "west", "product": "a", "sales": 50, "rating": 3.0},
	})
}

func TestApplyGroupCountOnly(t *testing.T) {
	table, err := applyGroup(groupInput(), map[string]any{"group_by": []any{"region"}})
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, []string{"region", "count"}, table.ColumnNames())

	// Groups come out in ascending key order.
	assert.Equal(t, Row{"region": "east", "count": 2}, table.Row(0))
	assert.Equal(t, Row{"region": "west", "count": 3}, table.Row(1))
}

func TestApplyGroupAggregations(t *testing.T) {
	table, err := applyGroup(groupInput(), map[string]any{
		"group_by":     []any{"region"},
		"aggregations": []any{"sum", "mean"},
		"fields":       []any{"sales"},
	})
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.ElementsMatch(t, []string{"region", "sales_sum", "sales_mean"}, table.ColumnNames())

	east, west := table.Row(0), table.Row(1)
	assert.Equal(t, "east", east["region"])
	assert.Equal(t, 60, east["sales_sum"])
	assert.InDelta(t, 30.0, east["sales_mean"], 1e-9)
	assert.Equal(t, 90, west["sales_sum"])
	assert.InDelta(t, 30.0, west["sales_mean"], 1e-9)

	// Summing an int column keeps the int type.
	sumType, _ := table.ColumnType("sales_sum")
	assert.Equal(t, ColumnTypeInt, sumType)
	meanType, _ := table.ColumnType("sales_mean")
	assert.Equal(t, ColumnTypeFloat, meanType)
}

func TestApplyGroupMinMax(t *testing.T) {
	table, err := applyGroup(groupInput(), map[string]any{
		"group_by":     []any{"product"},
		"aggregations": []any{"min", "max"},
		"fields":       []any{"rating"},
	})
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	a, b := table.Row(0), table.Row(1)
	assert.Equal(t, "a", a["product"])
	assert.Equal(t, 3.0, a["rating_min"])
	assert.Equal(t, 4.0, a["rating_max"])
	assert.Equal(t, 2.0, b["rating_min"])
	assert.Equal(t, 5.0, b["rating_max"])
}

func TestApplyGroupDefaultFields(t *testing.T) {
	// Without a fields list every non-key column is aggregated.
	table, err := applyGroup(groupInput(), map[string]any{
		"group_by":     []any{"region"},
		"aggregations": []any{"max"},
	})
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.ElementsMatch(t,
		[]string{"region", "product_max", "rating_max", "sales_max"},
		table.ColumnNames())

	east := table.Row(0)
	assert.Equal(t, "east", east["region"])
	assert.Equal(t, "b", east["product_max"])
	assert.Equal(t, 3.0, east["rating_max"])
	assert.Equal(t, 40, east["sales_max"])
}

func TestApplyGroupMultiKey(t *testing.T) {
	table, err := applyGroup(groupInput(), map[string]any{
		"group_by":     []any{"region", "product"},
		"aggregations": []any{"count"},
		"fields":       []any{"sales"},
	})
	require.NoError(t, err)

	require.Equal(t, 4, table.NumRows())
	assert.Equal(t, Row{"region": "east", "product": "a", "sales_count": 1}, table.Row(0))
	assert.Equal(t, Row{"region": "west", "product": "a", "sales_count": 2}, table.Row(2))
	assert.Equal(t, Row{"region": "west", "product": "b", "sales_count": 1}, table.Row(3))
}

func TestApplyGroupErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{
			name:    "missing group_by",
			config:  map[string]any{},
			wantErr: "group requires group_by",
		},
		{
			name:    "unknown key column",
			config:  map[string]any{"group_by": []any{"ghost"}},
			wantErr: `group_by column "ghost" not found`,
		},
		{
			name: "unsupported aggregation",
			config: map[string]any{
				"group_by":     []any{"region"},
				"aggregations": []any{"median"},
				"fields":       []any{"sales"},
			},
			wantErr: `unsupported aggregation "median"`,
		},
		{
			name: "sum over non-numeric field",
			config: map[string]any{
				"group_by":     []any{"region"},
				"aggregations": []any{"sum"},
				"fields":       []any{"product"},
			},
			wantErr: "requires a numeric field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyGroup(groupInput(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

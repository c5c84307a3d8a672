package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskRecord(id string, base *Table, mask Mask) *ExecutionRecord {
	return &ExecutionRecord{NodeID: id, State: NodeStateCompleted, mask: mask, base: base}
}

func TestCombineMasks(t *testing.T) {
	base := NewTableFromRecords([]map[string]any{
		{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4},
	})

	tests := []struct {
		name  string
		kind  NodeKind
		masks []Mask
		want  Mask
	}{
		{
			name:  "and intersects",
			kind:  NodeKindAnd,
			masks: []Mask{{true, true, false, false}, {false, true, true, false}},
			want:  Mask{false, true, false, false},
		},
		{
			name:  "or unions",
			kind:  NodeKindOr,
			masks: []Mask{{true, true, false, false}, {false, true, true, false}},
			want:  Mask{true, true, true, false},
		},
		{
			name:  "three way and",
			kind:  NodeKindAnd,
			masks: []Mask{{true, true, true, true}, {true, true, true, false}, {false, true, true, false}},
			want:  Mask{false, true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]*ExecutionRecord, len(tt.masks))
			for i, mask := range tt.masks {
				records[i] = maskRecord("f", base, mask)
			}

			combined, combinedBase, err := combineMasks(tt.kind, records)
			require.NoError(t, err)
			assert.Equal(t, tt.want, combined)
			assert.Same(t, base, combinedBase)
		})
	}
}

func TestCombineMasksErrors(t *testing.T) {
	base := NewTableFromRecords([]map[string]any{{"n": 1}, {"n": 2}})
	other := NewTableFromRecords([]map[string]any{{"n": 1}, {"n": 2}})

	tests := []struct {
		name    string
		records []*ExecutionRecord
		wantErr string
	}{
		{
			name:    "single predecessor",
			records: []*ExecutionRecord{maskRecord("f1", base, Mask{true, false})},
			wantErr: "requires at least 2 predecessor filters",
		},
		{
			name: "predecessor without a mask",
			records: []*ExecutionRecord{
				maskRecord("f1", base, Mask{true, false}),
				{NodeID: "src", State: NodeStateCompleted, table: base},
			},
			wantErr: `predecessor "src" has no mask`,
		},
		{
			name: "mask length disagreement",
			records: []*ExecutionRecord{
				maskRecord("f1", base, Mask{true, false}),
				maskRecord("f2", base, Mask{true, false, true}),
			},
			wantErr: "masks disagree in length",
		},
		{
			// Equal length is not enough; the masks must filter the same table.
			name: "different base tables",
			records: []*ExecutionRecord{
				maskRecord("f1", base, Mask{true, false}),
				maskRecord("f2", other, Mask{false, true}),
			},
			wantErr: "predecessors filter different base tables",
		},
		{
			name: "failed predecessor",
			records: []*ExecutionRecord{
				maskRecord("f1", base, Mask{true, false}),
				{NodeID: "f2", State: NodeStateFailed, Err: configErrorf("boom")},
			},
			wantErr: `depends on failed node "f2"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := combineMasks(NodeKindAnd, tt.records)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var depErr *DependencyError
			assert.ErrorAs(t, err, &depErr)
		})
	}
}

package dataflow

import (
	"encoding/json"
	"strings"
)

// Mask is a boolean vector aligned 1:1 with the row order of the base
// Table it was computed against.
type Mask []bool

func (m Mask) trueIndices() []int {
	indices := make([]int, 0, len(m))
	for i, keep := range m {
		if keep {
			indices = append(indices, i)
		}
	}
	return indices
}

// decodeConfig binds a node's raw config map onto a typed params struct
// through a JSON round-trip, the same way integration settings bind to
// action params.
func decodeConfig(config map[string]any, out any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return configErrorf("invalid node config: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return configErrorf("invalid node config: %v", err)
	}
	return nil
}

type filterParams struct {
	Field     string `json:"field"`
	Condition string `json:"condition"`
	Value     any    `json:"value"`
	Value1    any    `json:"value1"`
	Value2    any    `json:"value2"`
}

// operand returns the primary comparison operand; "value" and "value1" are
// accepted interchangeably.
func (p filterParams) operand() any {
	if p.Value != nil {
		return p.Value
	}
	return p.Value1
}

type conditionFunc func(cell, operand, operand2 any) bool

var filterConditions = map[string]conditionFunc{
	"gt":  func(x, y, _ any) bool { return compareValues(x, y) > 0 },
	"gte": func(x, y, _ any) bool { return compareValues(x, y) >= 0 },
	"lt":  func(x, y, _ any) bool { return compareValues(x, y) < 0 },
	"lte": func(x, y, _ any) bool { return compareValues(x, y) <= 0 },
	"eq":  func(x, y, _ any) bool { return equalValues(x, y) },
	"neq": func(x, y, _ any) bool { return !equalValues(x, y) },
	"in": func(x, y, _ any) bool {
		return valueInList(x, y)
	},
	"nin": func(x, y, _ any) bool {
		return !valueInList(x, y)
	},
	"range": func(x, low, high any) bool {
		return compareValues(x, low) >= 0 && compareValues(x, high) <= 0
	},
	"contains": func(x, y, _ any) bool {
		s, ok := x.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, toString(y))
	},
	"ncontains": func(x, y, _ any) bool {
		s, ok := x.(string)
		if !ok {
			return true
		}
		return !strings.Contains(s, toString(y))
	},
	"startswith": func(x, y, _ any) bool {
		return strings.HasPrefix(toString(x), toString(y))
	},
	"nstartswith": func(x, y, _ any) bool {
		return !strings.HasPrefix(toString(x), toString(y))
	},
}

// applyFilter evaluates one (field, condition, operand) rule element-wise
// over the input, producing the retained Mask and the filtered output
// table (matching rows in original order, re-indexed from 0).
func applyFilter(input *Table, config map[string]any) (Mask, *Table, error) {
	var p filterParams
	if err := decodeConfig(config, &p); err != nil {
		return nil, nil, err
	}

	if p.Field == "" {
		return nil, nil, configErrorf("filter requires a field")
	}
	if !input.HasColumn(p.Field) {
		return nil, nil, configErrorf("filter field %q not found in input", p.Field)
	}

	condition, ok := filterConditions[p.Condition]
	if !ok {
		return nil, nil, configErrorf("invalid filter condition %q", p.Condition)
	}

	switch p.Condition {
	case "range":
		if p.operand() == nil || p.Value2 == nil {
			return nil, nil, configErrorf("range filter requires two operands")
		}
	case "eq", "neq":
		// a missing operand is a deliberate null comparison
	default:
		if p.operand() == nil {
			return nil, nil, configErrorf("filter requires a value")
		}
	}

	mask := make(Mask, input.NumRows())
	for i, row := range input.Rows() {
		mask[i] = condition(row[p.Field], p.operand(), p.Value2)
	}

	return mask, input.Select(mask.trueIndices()), nil
}

package dataflow

import "sort"

type sortKey struct {
	Field     string
	Ascending bool
}

// applySort stable-sorts rows by one or more fields, each ascending or
// descending, and re-indexes the result from 0. The config accepts a
// single field or a list, with "asc" as a bool or a parallel bool list.
func applySort(input *Table, config map[string]any) (*Table, error) {
	keys, err := parseSortKeys(config)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if !input.HasColumn(key.Field) {
			return nil, configErrorf("sort field %q not found in input", key.Field)
		}
	}

	indices := make([]int, input.NumRows())
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(a, b int) bool {
		rowA, rowB := input.Row(indices[a]), input.Row(indices[b])
		for _, key := range keys {
			c := compareValues(rowA[key.Field], rowB[key.Field])
			if c == 0 {
				continue
			}
			if key.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})

	return input.Select(indices), nil
}

func parseSortKeys(config map[string]any) ([]sortKey, error) {
	var fields []string
	switch value := config["field"].(type) {
	case string:
		fields = []string{value}
	case []any:
		for _, item := range value {
			field, ok := item.(string)
			if !ok {
				return nil, configErrorf("sort fields must be strings")
			}
			fields = append(fields, field)
		}
	case nil:
		return nil, configErrorf("sort requires a field")
	default:
		return nil, configErrorf("invalid sort field type %T", value)
	}

	ascending := make([]bool, len(fields))
	for i := range ascending {
		ascending[i] = true
	}
	switch value := config["asc"].(type) {
	case bool:
		for i := range ascending {
			ascending[i] = value
		}
	case []any:
		if len(value) != len(fields) {
			return nil, configErrorf("sort asc list must match the field list length")
		}
		for i, item := range value {
			asc, ok := item.(bool)
			if !ok {
				return nil, configErrorf("sort asc values must be booleans")
			}
			ascending[i] = asc
		}
	case nil:
	default:
		return nil, configErrorf("invalid sort asc type %T", value)
	}

	keys := make([]sortKey, len(fields))
	for i, field := range fields {
		keys[i] = sortKey{Field: field, Ascending: ascending[i]}
	}
	return keys, nil
}

package dataflow

// runSource builds a Table from the node's inline input: a list of
// records, a single record, or the name of a preloaded fixture dataset.
// Nested fields are flattened to dotted column names.
func runSource(config map[string]any, fixtures *FixtureStore) (*Table, error) {
	input, ok := config["input"]
	if !ok {
		return nil, configErrorf("datasource requires an input")
	}

	switch value := input.(type) {
	case []any:
		records := make([]map[string]any, 0, len(value))
		for _, item := range value {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, configErrorf("datasource rows must be objects")
			}
			records = append(records, record)
		}
		return NewTableFromRecords(records), nil

	case map[string]any:
		return NewTableFromRecords([]map[string]any{value}), nil

	case string:
		if fixtures == nil {
			return nil, configErrorf("no fixture datasets are available")
		}
		rows, ok := fixtures.Rows(value)
		if !ok {
			return nil, configErrorf("unknown dataset %q", value)
		}
		return NewTableFromRecords(rows), nil

	default:
		return nil, configErrorf("invalid datasource input type %T", input)
	}
}

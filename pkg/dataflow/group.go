package dataflow

import (
	"sort"

	"github.com/montanaflynn/stats"
)

type groupParams struct {
	GroupBy      []string `json:"group_by"`
	Aggregations []string `json:"aggregations"`
	Fields       []string `json:"fields"`
}

var supportedAggregations = map[string]bool{
	"sum": true, "mean": true, "max": true, "min": true, "count": true,
}

// applyGroup groups rows by an ordered list of key columns and either
// applies the cross product of aggregations over the target fields (result
// columns named field_aggregate) or, with no aggregation list, counts rows
// per group. An omitted fields list aggregates every non-key column.
// Groups are emitted in ascending key order.
func applyGroup(input *Table, config map[string]any) (*Table, error) {
	var p groupParams
	if err := decodeConfig(config, &p); err != nil {
		return nil, err
	}

	if len(p.GroupBy) == 0 {
		return nil, configErrorf("group requires group_by")
	}
	for _, key := range p.GroupBy {
		if !input.HasColumn(key) {
			return nil, configErrorf("group_by column %q not found in input", key)
		}
	}

	countOnly := len(p.Aggregations) == 0
	if !countOnly {
		if len(p.Fields) == 0 {
			p.Fields = nonKeyColumns(input.ColumnNames(), p.GroupBy)
		}
		if len(p.Fields) == 0 {
			return nil, configErrorf("group has no columns to aggregate")
		}
		for _, agg := range p.Aggregations {
			if !supportedAggregations[agg] {
				return nil, configErrorf("unsupported aggregation %q", agg)
			}
		}
		for _, field := range p.Fields {
			if !input.HasColumn(field) {
				return nil, configErrorf("aggregation field %q not found in input", field)
			}
		}
	}

	// Bucket row indices by key tuple, keyed on first appearance.
	type bucket struct {
		key  []any
		rows []int
	}
	buckets := map[string]*bucket{}
	var order []string

	for i, row := range input.Rows() {
		id := ""
		key := make([]any, len(p.GroupBy))
		for k, name := range p.GroupBy {
			key[k] = row[name]
			id += toString(row[name]) + "\x00"
		}
		b, ok := buckets[id]
		if !ok {
			b = &bucket{key: key}
			buckets[id] = b
			order = append(order, id)
		}
		b.rows = append(b.rows, i)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := buckets[order[a]].key, buckets[order[b]].key
		for i := range ka {
			if c := compareValues(ka[i], kb[i]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	columns := make([]Column, 0, len(p.GroupBy)+1)
	for _, key := range p.GroupBy {
		keyType, _ := input.ColumnType(key)
		columns = append(columns, Column{Name: key, Type: keyType})
	}

	if countOnly {
		columns = append(columns, Column{Name: "count", Type: ColumnTypeInt})
	} else {
		for _, field := range p.Fields {
			fieldType, _ := input.ColumnType(field)
			for _, agg := range p.Aggregations {
				columns = append(columns, Column{Name: field + "_" + agg, Type: aggregateType(agg, fieldType)})
			}
		}
	}

	rows := make([]Row, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		row := Row{}
		for k, name := range p.GroupBy {
			row[name] = b.key[k]
		}

		if countOnly {
			row["count"] = len(b.rows)
		} else {
			for _, field := range p.Fields {
				fieldType, _ := input.ColumnType(field)
				for _, agg := range p.Aggregations {
					value, err := aggregate(agg, input, field, fieldType, b.rows)
					if err != nil {
						return nil, err
					}
					row[field+"_"+agg] = value
				}
			}
		}
		rows = append(rows, row)
	}

	return NewTable(columns, rows), nil
}

// nonKeyColumns is the default aggregation target list: every input
// column that is not a grouping key, in column order.
func nonKeyColumns(columns, groupBy []string) []string {
	keys := make(map[string]bool, len(groupBy))
	for _, key := range groupBy {
		keys[key] = true
	}
	fields := make([]string, 0, len(columns))
	for _, name := range columns {
		if !keys[name] {
			fields = append(fields, name)
		}
	}
	return fields
}

func aggregateType(agg string, fieldType ColumnType) ColumnType {
	switch agg {
	case "count":
		return ColumnTypeInt
	case "sum":
		if fieldType == ColumnTypeInt || fieldType == ColumnTypeFloat {
			return fieldType
		}
		return ColumnTypeFloat
	default:
		return ColumnTypeFloat
	}
}

func aggregate(agg string, input *Table, field string, fieldType ColumnType, rowIndices []int) (any, error) {
	if agg == "count" {
		return len(rowIndices), nil
	}

	if agg == "max" || agg == "min" {
		var best any
		for _, i := range rowIndices {
			v := input.Row(i)[field]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := compareValues(v, best)
			if (agg == "max" && c > 0) || (agg == "min" && c < 0) {
				best = v
			}
		}
		return best, nil
	}

	// sum and mean need a numeric field.
	values := make([]float64, 0, len(rowIndices))
	for _, i := range rowIndices {
		v := input.Row(i)[field]
		if v == nil {
			continue
		}
		f, ok := asFloat(v)
		if !ok {
			return nil, configErrorf("aggregation %q requires a numeric field, %q is %s", agg, field, fieldType)
		}
		values = append(values, f)
	}

	switch agg {
	case "sum":
		total := 0.0
		for _, f := range values {
			total += f
		}
		if fieldType == ColumnTypeInt {
			return int(total), nil
		}
		return total, nil
	case "mean":
		mean, err := stats.Mean(values)
		if err != nil {
			return nil, computationErrorf("mean over empty group for field %q", field)
		}
		return mean, nil
	}

	return nil, configErrorf("unsupported aggregation %q", agg)
}

package dataflow

import "sort"

// Schema is a column-name to type map describing a node's output shape.
type Schema map[string]ColumnType

func (s Schema) clone() Schema {
	out := make(Schema, len(s))
	for name, columnType := range s {
		out[name] = columnType
	}
	return out
}

type SchemaPropagatorDependencies struct {
	Fixtures *FixtureStore
}

// SchemaPropagator walks a graph in the runner's topological order and
// propagates column/type maps through the operator semantics without
// materializing any row data. It never fails on a well-formed graph: a
// node whose predecessor shape is unknown degrades to an empty schema.
type SchemaPropagator struct {
	fixtures *FixtureStore
}

func NewSchemaPropagator(deps SchemaPropagatorDependencies) *SchemaPropagator {
	return &SchemaPropagator{fixtures: deps.Fixtures}
}

// Propagate returns each node's output schema keyed by node id.
func (p *SchemaPropagator) Propagate(g *Graph) (map[string]Schema, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	schemas := make(map[string]Schema, len(order))
	for _, nodeID := range order {
		node, _ := g.Node(nodeID)
		schemas[nodeID] = p.nodeSchema(g, node, schemas)
	}
	return schemas, nil
}

// AllowedFields returns, per node, the columns that node receives from its
// first predecessor; these are the fields its configuration may reference.
func (p *SchemaPropagator) AllowedFields(g *Graph) (map[string]Schema, error) {
	schemas, err := p.Propagate(g)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]Schema, g.NumNodes())
	for _, nodeID := range g.NodeIDs() {
		predecessors := g.Predecessors(nodeID)
		if len(predecessors) == 0 {
			allowed[nodeID] = Schema{}
			continue
		}
		allowed[nodeID] = schemas[predecessors[0]].clone()
	}
	return allowed, nil
}

func (p *SchemaPropagator) nodeSchema(g *Graph, node Node, schemas map[string]Schema) Schema {
	predecessors := g.Predecessors(node.ID)

	inputSchema := func() Schema {
		if len(predecessors) == 0 {
			return nil
		}
		return schemas[predecessors[0]]
	}

	switch node.Kind {
	case NodeKindSource:
		return p.sourceSchema(node.Config)

	case NodeKindFilter, NodeKindSort, NodeKindAnd, NodeKindOr, NodeKindExport, NodeKindChart:
		if input := inputSchema(); input != nil {
			return input.clone()
		}
		return Schema{}

	case NodeKindGroup:
		if input := inputSchema(); input != nil {
			return groupSchema(input, node.Config)
		}
		return Schema{}

	case NodeKindMerge:
		if len(predecessors) < 2 {
			return Schema{}
		}
		left, right := schemas[predecessors[0]], schemas[predecessors[1]]
		if left == nil || right == nil {
			return Schema{}
		}
		return mergeSchema(left, right, node.Config)

	case NodeKindForecast:
		if input := inputSchema(); input != nil {
			return forecastSchema(input, node.Config)
		}
		return Schema{}

	case NodeKindAnomaly:
		if input := inputSchema(); input != nil {
			out := input.clone()
			out["anomaly_score"] = ColumnTypeFloat
			out["is_anomaly"] = ColumnTypeBool
			return out
		}
		return Schema{}

	default:
		return Schema{}
	}
}

// sourceSchema infers a datasource's shape from its inline input, or from
// a sample of the named fixture dataset, applying the same dotted-key
// flattening the runner applies so both views of the node agree.
func (p *SchemaPropagator) sourceSchema(config map[string]any) Schema {
	input := config["input"]

	inferRecord := func(record map[string]any) Schema {
		schema := Schema{}
		for key, value := range FlattenRecord(record) {
			schema[key] = InferType(value)
		}
		return schema
	}

	switch value := input.(type) {
	case map[string]any:
		return inferRecord(value)
	case []any:
		if len(value) == 0 {
			return Schema{}
		}
		if record, ok := value[0].(map[string]any); ok {
			return inferRecord(record)
		}
		return Schema{}
	case string:
		if p.fixtures == nil {
			return Schema{}
		}
		if schema, ok := p.fixtures.Schema(value); ok {
			return schema.clone()
		}
		return Schema{}
	default:
		return Schema{}
	}
}

func groupSchema(input Schema, config map[string]any) Schema {
	var p groupParams
	if err := decodeConfig(config, &p); err != nil {
		return Schema{}
	}

	out := Schema{}
	for _, key := range p.GroupBy {
		if keyType, ok := input[key]; ok {
			out[key] = keyType
		} else {
			out[key] = ColumnTypeString
		}
	}

	if len(p.Aggregations) == 0 {
		out["count"] = ColumnTypeInt
		return out
	}

	if len(p.Fields) == 0 {
		var columns []string
		for name := range input {
			columns = append(columns, name)
		}
		sort.Strings(columns)
		p.Fields = nonKeyColumns(columns, p.GroupBy)
	}

	for _, field := range p.Fields {
		for _, agg := range p.Aggregations {
			out[field+"_"+agg] = aggregateType(agg, input[field])
		}
	}
	return out
}

func mergeSchema(left, right Schema, config map[string]any) Schema {
	var p mergeParams
	if err := decodeConfig(config, &p); err != nil {
		return Schema{}
	}

	suffixLeft, suffixRight := "_x", "_y"
	if len(p.Suffixes) == 2 {
		suffixLeft, suffixRight = p.Suffixes[0], p.Suffixes[1]
	}

	mergeKeys := map[string]bool{}
	for _, key := range []string{p.On, p.LeftOn, p.RightOn} {
		if key != "" {
			mergeKeys[key] = true
		}
	}

	out := Schema{}
	for name, columnType := range left {
		if _, collides := right[name]; collides && !mergeKeys[name] {
			out[name+suffixLeft] = columnType
		} else {
			out[name] = columnType
		}
	}
	for name, columnType := range right {
		_, inLeft := left[name]
		switch {
		case mergeKeys[name] && inLeft:
			// shared join key appears once, from the left side
		case inLeft:
			out[name+suffixRight] = columnType
		default:
			out[name] = columnType
		}
	}
	return out
}

func forecastSchema(input Schema, config map[string]any) Schema {
	var p forecastParams
	if err := decodeConfig(config, &p); err != nil {
		return Schema{}
	}

	out := Schema{}
	if p.TSCol != "" {
		if tsType, ok := input[p.TSCol]; ok {
			out[p.TSCol] = tsType
		} else {
			out[p.TSCol] = ColumnTypeTimestamp
		}
	}
	out["forecast"] = ColumnTypeFloat
	if p.Combine {
		out["source"] = ColumnTypeString
	}
	return out
}

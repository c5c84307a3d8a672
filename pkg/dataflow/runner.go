package dataflow

import (
	"context"

	"github.com/rs/zerolog/log"
)

type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateCompleted NodeState = "completed"
	NodeStateFailed    NodeState = "failed"
)

// ErrorInfo is the wire form of a per-node failure.
type ErrorInfo struct {
	Message string `json:"message"`
}

// Event is emitted once per node as soon as its output is ready.
type Event struct {
	NodeID string           `json:"node_id"`
	Output []map[string]any `json:"output"`
	Error  *ErrorInfo       `json:"error,omitempty"`
}

// ExecutionRecord is the memoized per-node result for one run. Records
// live in a map owned exclusively by that run and are discarded when it
// ends; nothing is cached across runs.
type ExecutionRecord struct {
	NodeID string
	State  NodeState
	Step   int
	Err    error

	table *Table
	mask  Mask
	base  *Table

	// materializer defers and/or row selection until the output is
	// actually read; a consumer that only needs the mask never pays for
	// the filtering.
	materializer func() *Table
}

// Output returns the node's table, materializing it on first read.
func (r *ExecutionRecord) Output() (*Table, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.table == nil && r.materializer != nil {
		r.table = r.materializer()
	}
	return r.table, nil
}

// Mask returns the boolean vector retained by filter and and/or nodes.
func (r *ExecutionRecord) Mask() Mask { return r.mask }

type RunnerDependencies struct {
	Fixtures *FixtureStore
}

// Runner walks a graph in the scheduler's topological order, invoking one
// operator per node and streaming an Event per completed node.
type Runner struct {
	fixtures *FixtureStore
}

func NewRunner(deps RunnerDependencies) *Runner {
	return &Runner{fixtures: deps.Fixtures}
}

// Execute starts a single-threaded run over the graph. Structural problems
// (cycles, broken references already caught at parse) surface here, before
// any event. The returned channel yields one Event per node in topological
// order and closes when the run ends; cancel the context to stop a run
// that is no longer being consumed.
func (r *Runner) Execute(ctx context.Context, g *Graph) (<-chan Event, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	events := make(chan Event)

	go func() {
		defer close(events)

		records := make(map[string]*ExecutionRecord, len(order))

		for step, nodeID := range order {
			node, _ := g.Node(nodeID)
			record := r.runNode(g, node, records, step)
			records[nodeID] = record

			event := Event{NodeID: nodeID, Output: []map[string]any{}}
			if record.Err != nil {
				log.Warn().Str("node_id", nodeID).Err(record.Err).Msg("Node failed")
				event.Error = &ErrorInfo{Message: record.Err.Error()}
			} else if table, err := record.Output(); err == nil && table != nil {
				event.Output = table.Records()
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// ExecuteAll runs the graph to completion and collects every event.
func (r *Runner) ExecuteAll(ctx context.Context, g *Graph) ([]Event, error) {
	stream, err := r.Execute(ctx, g)
	if err != nil {
		return nil, err
	}
	var events []Event
	for event := range stream {
		events = append(events, event)
	}
	return events, nil
}

func (r *Runner) runNode(g *Graph, node Node, records map[string]*ExecutionRecord, step int) *ExecutionRecord {
	record := &ExecutionRecord{NodeID: node.ID, State: NodeStateRunning, Step: step}

	fail := func(err error) *ExecutionRecord {
		record.State = NodeStateFailed
		record.Err = err
		return record
	}

	switch node.Kind {
	case NodeKindSource:
		table, err := runSource(node.Config, r.fixtures)
		if err != nil {
			return fail(err)
		}
		record.table = table

	case NodeKindFilter:
		input, err := singleInput(g, node, records)
		if err != nil {
			return fail(err)
		}
		mask, table, err := applyFilter(input, node.Config)
		if err != nil {
			return fail(err)
		}
		record.mask, record.base, record.table = mask, input, table

	case NodeKindAnd, NodeKindOr:
		predecessors := g.Predecessors(node.ID)
		predRecords := make([]*ExecutionRecord, 0, len(predecessors))
		for _, id := range predecessors {
			predRecords = append(predRecords, records[id])
		}
		mask, base, err := combineMasks(node.Kind, predRecords)
		if err != nil {
			return fail(err)
		}
		record.mask, record.base = mask, base
		record.materializer = func() *Table { return base.Select(mask.trueIndices()) }

	case NodeKindMerge:
		predecessors := g.Predecessors(node.ID)
		if len(predecessors) < 2 {
			return fail(dependencyErrorf("merge requires two inputs, got %d", len(predecessors)))
		}
		left, err := recordOutput(records[predecessors[0]])
		if err != nil {
			return fail(err)
		}
		right, err := recordOutput(records[predecessors[1]])
		if err != nil {
			return fail(err)
		}
		table, err := applyMerge(left, right, node.Config)
		if err != nil {
			return fail(err)
		}
		record.table = table

	case NodeKindGroup, NodeKindSort, NodeKindForecast, NodeKindAnomaly, NodeKindExport, NodeKindChart:
		input, err := singleInput(g, node, records)
		if err != nil {
			return fail(err)
		}
		var table *Table
		switch node.Kind {
		case NodeKindGroup:
			table, err = applyGroup(input, node.Config)
		case NodeKindSort:
			table, err = applySort(input, node.Config)
		case NodeKindForecast:
			table, err = applyForecast(input, node.Config)
		case NodeKindAnomaly:
			table, err = applyAnomaly(input, node.Config)
		default:
			table, err = applyExport(input)
		}
		if err != nil {
			return fail(err)
		}
		record.table = table

	default:
		return fail(configErrorf("unknown node type %q", node.Type))
	}

	record.State = NodeStateCompleted
	return record
}

// singleInput resolves the one predecessor table a unary operator
// consumes. Extra declared edges are tolerated; the first declared edge
// wins.
func singleInput(g *Graph, node Node, records map[string]*ExecutionRecord) (*Table, error) {
	predecessors := g.Predecessors(node.ID)
	if len(predecessors) == 0 {
		return nil, dependencyErrorf("node %q has no input", node.ID)
	}
	return recordOutput(records[predecessors[0]])
}

func recordOutput(record *ExecutionRecord) (*Table, error) {
	if record == nil {
		return nil, dependencyErrorf("predecessor output is missing")
	}
	table, err := record.Output()
	if err != nil {
		return nil, dependencyErrorf("predecessor %q produced no usable output: %v", record.NodeID, err)
	}
	return table, nil
}

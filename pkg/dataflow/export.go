package dataflow

// applyExport is the terminal passthrough: it carries no transformation
// semantics, it only hands its predecessor's table to the event stream as
// the externally visible result. Chart kinds share it.
func applyExport(input *Table) (*Table, error) {
	return input, nil
}

package dataflow

import (
	"errors"
	"fmt"
)

// CyclicGraphError is raised when Kahn's algorithm cannot linearize the
// graph. It is fatal to the whole run before any event is produced.
type CyclicGraphError struct{}

func (e *CyclicGraphError) Error() string {
	return "graph contains a cycle, cannot determine execution order"
}

// StructuralError covers bad node or edge references. Like a cycle it is
// fatal to the whole run and surfaced before execution begins.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string { return e.Message }

func structuralErrorf(format string, args ...any) *StructuralError {
	return &StructuralError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError marks an invalid node configuration (unknown condition or
// method, missing required field). Fatal to the offending node only.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// DependencyError marks a node whose required predecessor output is absent,
// e.g. an and/or node referencing a filter that never computed a mask.
type DependencyError struct {
	Message string
}

func (e *DependencyError) Error() string { return e.Message }

func dependencyErrorf(format string, args ...any) *DependencyError {
	return &DependencyError{Message: fmt.Sprintf(format, args...)}
}

// ComputationError marks a numerical failure such as a non-converging
// model fit. Surfaced on the offending node only.
type ComputationError struct {
	Message string
}

func (e *ComputationError) Error() string { return e.Message }

func computationErrorf(format string, args ...any) *ComputationError {
	return &ComputationError{Message: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err aborts a run before any execution.
func IsStructural(err error) bool {
	var cycErr *CyclicGraphError
	var structErr *StructuralError
	return errors.As(err, &cycErr) || errors.As(err, &structErr)
}

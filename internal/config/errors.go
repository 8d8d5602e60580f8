package config

import (
	"errors"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid workflow")
	ErrCycle        = errors.New("dependency cycle")
)

// GraphError reports every problem found while validating a workflow.
type GraphError struct {
	Kind     error
	Problems []string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Problems) == 0 {
		return e.Kind.Error()
	}
	return "workflow validation failed:\n- " + strings.Join(e.Problems, "\n- ")
}

func (e *GraphError) Unwrap() error { return e.Kind }

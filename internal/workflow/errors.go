package workflow

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Handlers wrap underlying errors so operators can tell
// a store fault from a platform fault from a broken resume correlation.
var (
	ErrPersistence = errors.New("persistence error")
	ErrGatewayOp   = errors.New("gateway error")
	ErrCorrelation = errors.New("correlation error")
)

func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func GatewayOp(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGatewayOp, op, err)
}

func Correlation(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorrelation, op, err)
}

// SuspendError is the explicit "not yet complete" signal: a stage returns
// it instead of outputs, the engine parks the run, and a later
// CompleteSuccess/CompleteError keyed by the correlation id resumes or
// terminates it.
type SuspendError struct {
	Correlation string
}

func (e *SuspendError) Error() string {
	return "workflow: stage suspended (correlation " + e.Correlation + ")"
}

// Suspend builds the incomplete signal. Correlation is the key a resume
// handler will present later; for the announcement workflow it is the
// draft id.
func Suspend(correlation string) error {
	return &SuspendError{Correlation: correlation}
}

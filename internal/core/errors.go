package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters is matched by every ParameterError.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrNoSource is returned when an operation needs a source image.
	ErrNoSource = errors.New("no source image")
	// ErrClosed is returned after the pipeline was torn down.
	ErrClosed = errors.New("pipeline closed")
)

// StageError reports that the engine call for a stage failed.
type StageError struct {
	Stage StageIndex
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("engine call failed at stage %d (%s): %v", int(e.Stage), e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ParameterError reports a parameter outside its domain.
type ParameterError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameters
}

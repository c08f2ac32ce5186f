package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrGeometryDegenerate = errors.New("degenerate geometry")
	ErrMergeFailed        = errors.New("territory merge failed")
	ErrPersistence        = errors.New("persistence failure")
	ErrVersionConflict    = errors.New("territory version conflict")
)

// InputError is a request the caller must correct. Session state is left
// unchanged when one is returned.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "invalid input: " + e.Reason }

// Is lets errors.Is(err, ErrInvalidInput) match every InputError.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

var (
	ErrWalkTooShort      = &InputError{Reason: "walk has fewer than 3 points"}
	ErrSessionNotActive  = &InputError{Reason: "walk session is not active"}
	ErrWalkInProgress    = &InputError{Reason: "dog already has an active walk"}
	ErrInvalidCoordinate = &InputError{Reason: "coordinate out of range"}
)

// DegenerateWalkError is returned by EndWalk when the final hull is not a
// valid polygon and the service is configured to reject such walks. It
// matches both ErrGeometryDegenerate and ErrInvalidInput.
type DegenerateWalkError struct {
	Cause error
}

func (e *DegenerateWalkError) Error() string {
	return fmt.Sprintf("invalid input: walk does not enclose a valid territory: %v", e.Cause)
}

func (e *DegenerateWalkError) Is(target error) bool {
	return target == ErrInvalidInput || target == ErrGeometryDegenerate
}

func (e *DegenerateWalkError) Unwrap() error { return e.Cause }

// PersistenceError wraps a failed store write. It is retryable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

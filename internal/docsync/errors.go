package docsync

import (
	"errors"
	"fmt"
)

// ErrDocumentNotRegistered is returned when a document handed to the
// coordinator is not tracked in the draft registry.
var ErrDocumentNotRegistered = errors.New("document is not registered in the draft store")

// SynchronizationConflictError reports that the published store holds a
// different identifier than the draft store expects. It is never resolved
// automatically.
type SynchronizationConflictError struct {
	// Path is the published path where the mismatch was found.
	Path string
	// FoundIdentifier is the identifier already published at Path, if any.
	FoundIdentifier string
	// ExpectedIdentifier is the draft identifier for Path.
	ExpectedIdentifier string
	// ExistingPath is set when ExpectedIdentifier is already published
	// somewhere other than Path.
	ExistingPath string
}

func (e *SynchronizationConflictError) Error() string {
	if e.ExistingPath != "" {
		return fmt.Sprintf("synchronization conflict at %s: identifier %s is already published at %s",
			e.Path, e.ExpectedIdentifier, e.ExistingPath)
	}
	return fmt.Sprintf("synchronization conflict at %s: found identifier %s, expected %s",
		e.Path, e.FoundIdentifier, e.ExpectedIdentifier)
}

// IntegrityError reports that the draft store lacks a node the algorithm relies
// on. It points at an upstream data bug and must not be retried.
type IntegrityError struct {
	Path string
	Err  error
}

func (e *IntegrityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("draft integrity: no node at %s", e.Path)
	}
	return fmt.Sprintf("draft integrity at %s: %v", e.Path, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// StoreError wraps an I/O failure reported by a Store or Registry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsConflict reports whether err carries a *SynchronizationConflictError.
func IsConflict(err error) bool {
	var conflict *SynchronizationConflictError
	return errors.As(err, &conflict)
}

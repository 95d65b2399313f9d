package tree

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNodeNotFound is returned when no node matches a lookup.
	ErrNodeNotFound = errors.New("node not found")

	// ErrParentMissing is returned by CreateAt when the parent path does not exist.
	ErrParentMissing = errors.New("parent node missing")

	// ErrPathExists is returned by CreateAt when the path is already taken.
	ErrPathExists = errors.New("path already exists")

	// ErrIdentifierExists is returned by CreateAt when the identifier is already
	// used at another path.
	ErrIdentifierExists = errors.New("identifier already exists")

	// ErrInvalidIdentifier is returned for empty identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidPath is matched by every *PathError.
	ErrInvalidPath = errors.New("invalid path")
)

// PathError reports a path that is not in clean rooted form.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q", e.Path)
}

func (e *PathError) Is(target error) bool {
	return target == ErrInvalidPath
}

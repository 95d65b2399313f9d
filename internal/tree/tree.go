// Package tree defines the hierarchical node store consumed by the publisher.
//
// A Store addresses every node both by its path and by an identifier that is
// assigned once at creation and never changes. Within one store the two lookups
// agree: one identifier lives at exactly one path and one path holds exactly one
// identifier. The root path "/" always exists and carries no identifier.
package tree

import (
	"context"
	"strings"
)

// RootPath is the implicit root of every store.
const RootPath = "/"

// NodeHandle is the store-side representation of a document.
type NodeHandle struct {
	Identifier string `json:"id"`
	Path       string `json:"path"`
}

// Store is a hierarchical key-value tree addressable by path or identifier.
type Store interface {
	HasIdentifier(ctx context.Context, id string) (bool, error)
	HasPath(ctx context.Context, path string) (bool, error)
	// FindByIdentifier returns ErrNodeNotFound when no node carries id.
	FindByIdentifier(ctx context.Context, id string) (NodeHandle, error)
	// FindByPath returns ErrNodeNotFound when nothing lives at path.
	FindByPath(ctx context.Context, path string) (NodeHandle, error)
	// CreateAt creates a node with the given identifier. The parent of path
	// must already exist.
	CreateAt(ctx context.Context, path, id string) (NodeHandle, error)
	ParentPath(path string) string
}

// ParentPath returns the parent of path. The parent of a top-level node is the
// root; the root itself has no parent and yields "".
func ParentPath(path string) string {
	path = Clean(path)
	if path == RootPath {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return RootPath
	}
	return path[:idx]
}

// Prefixes lists every path from the first segment down to path itself, root
// excluded: "/a/b/c" yields "/a", "/a/b", "/a/b/c".
func Prefixes(path string) []string {
	segments := Segments(path)
	prefixes := make([]string, 0, len(segments))
	current := ""
	for _, segment := range segments {
		current += "/" + segment
		prefixes = append(prefixes, current)
	}
	return prefixes
}

// Segments splits path into its non-empty segments.
func Segments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Clean normalises path to a rooted form without empty or trailing segments.
func Clean(path string) string {
	segments := Segments(path)
	if len(segments) == 0 {
		return RootPath
	}
	return "/" + strings.Join(segments, "/")
}

// ValidatePath reports whether path is already in its clean, rooted form.
func ValidatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, "/") || Clean(path) != path {
		return &PathError{Path: path}
	}
	for _, segment := range Segments(path) {
		if segment == "." || segment == ".." {
			return &PathError{Path: path}
		}
	}
	return nil
}

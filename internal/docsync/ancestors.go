package docsync

import (
	"context"
	"errors"
	"log/slog"

	"chronicle/docsync/internal/tree"
)

// AncestorSynchronizer mirrors missing ancestor nodes from the draft store into
// the published store, copying the draft identifier of every segment.
type AncestorSynchronizer struct {
	draft     tree.Store
	published tree.Store
	logger    *slog.Logger
}

func NewAncestorSynchronizer(draft, published tree.Store, logger *slog.Logger) *AncestorSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AncestorSynchronizer{draft: draft, published: published, logger: logger}
}

// SyncPath makes sure every prefix of path, path included, exists in the
// published store with the identifier its draft counterpart has. The first
// conflicting prefix stops the walk.
func (a *AncestorSynchronizer) SyncPath(ctx context.Context, path string) error {
	_, err := a.syncPath(ctx, path)
	return err
}

func (a *AncestorSynchronizer) syncPath(ctx context.Context, path string) (int, error) {
	created := 0
	for _, prefix := range tree.Prefixes(path) {
		draftNode, err := a.draft.FindByPath(ctx, prefix)
		if errors.Is(err, tree.ErrNodeNotFound) {
			return created, &IntegrityError{Path: prefix, Err: err}
		}
		if err != nil {
			return created, storeError("find draft ancestor", err)
		}

		exists, err := a.published.HasPath(ctx, prefix)
		if err != nil {
			return created, storeError("lookup published ancestor", err)
		}
		if exists {
			publishedNode, err := a.published.FindByPath(ctx, prefix)
			if err != nil {
				return created, storeError("find published ancestor", err)
			}
			if publishedNode.Identifier != draftNode.Identifier {
				return created, &SynchronizationConflictError{
					Path:               prefix,
					FoundIdentifier:    publishedNode.Identifier,
					ExpectedIdentifier: draftNode.Identifier,
				}
			}
			continue
		}

		elsewhere, err := a.published.HasIdentifier(ctx, draftNode.Identifier)
		if err != nil {
			return created, storeError("lookup published ancestor identifier", err)
		}
		if elsewhere {
			moved, err := a.published.FindByIdentifier(ctx, draftNode.Identifier)
			if err != nil {
				return created, storeError("find published ancestor identifier", err)
			}
			return created, &SynchronizationConflictError{
				Path:               prefix,
				ExpectedIdentifier: draftNode.Identifier,
				ExistingPath:       moved.Path,
			}
		}

		if _, err := a.published.CreateAt(ctx, prefix, draftNode.Identifier); err != nil {
			return created, storeError("create published ancestor", err)
		}
		created++
		a.logger.DebugContext(ctx, "Created published ancestor",
			"path", prefix,
			"id", draftNode.Identifier)
	}
	return created, nil
}

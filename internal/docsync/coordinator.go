package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chronicle/docsync/internal/telemetry"
	"chronicle/docsync/internal/tree"
)

// Coordinator registers draft documents against the published store. One
// Coordinator serves one publish session; its registries must not be shared with
// another session running concurrently.
type Coordinator struct {
	draft             tree.Store
	published         tree.Store
	draftRegistry     Registry
	publishedRegistry Registry

	resolver  *IdentityResolver
	ancestors *AncestorSynchronizer
	walker    RelationWalker

	logger  *slog.Logger
	metrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*Coordinator)

// WithLogger sets the logger used for session diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// New creates a coordinator for one session over the given stores and registries.
func New(draft, published tree.Store, draftRegistry, publishedRegistry Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		draft:             draft,
		published:         published,
		draftRegistry:     draftRegistry,
		publishedRegistry: publishedRegistry,
		resolver:          NewIdentityResolver(published),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ancestors = NewAncestorSynchronizer(draft, published, c.logger)
	return c
}

// RegisterOption tunes a single RegisterDocument call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	force   bool
	cascade bool
}

// WithForce resolves the document again even if the session already bound it.
func WithForce() RegisterOption {
	return func(o *registerOptions) { o.force = true }
}

// WithoutCascade skips the synchronization of related documents.
func WithoutCascade() RegisterOption {
	return func(o *registerOptions) { o.cascade = false }
}

type resolveMode int

const (
	// modeStrict creates missing ancestors.
	modeStrict resolveMode = iota
	// modePermissive leaves a document unresolved when its parent is not published.
	modePermissive
)

// RegisterDocument binds doc to its published node, creating the node and any
// missing ancestors when needed, then does the same for its directly related
// documents. The parent is always resolved; other relations only when their
// parent is already published. Any conflict aborts the call before doc is bound.
func (c *Coordinator) RegisterDocument(ctx context.Context, doc Document, opts ...RegisterOption) error {
	if isNilDocument(doc) {
		return errors.New("register document: nil document")
	}
	o := registerOptions{cascade: true}
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	err := c.registerDocument(ctx, doc, o)
	c.metrics.RecordDuration(ctx, time.Since(started), err == nil)

	var conflict *SynchronizationConflictError
	if errors.As(err, &conflict) {
		c.metrics.RecordConflict(ctx, doc.Locale())
		c.logger.WarnContext(ctx, "Publish conflict",
			"document", doc.Identifier(),
			"locale", doc.Locale(),
			"path", conflict.Path,
			"found", conflict.FoundIdentifier,
			"expected", conflict.ExpectedIdentifier)
	}
	return err
}

func (c *Coordinator) registerDocument(ctx context.Context, doc Document, o registerOptions) error {
	if !o.force {
		bound, err := c.isBound(ctx, doc)
		if err != nil || bound {
			return err
		}
	}

	tracked, err := c.isTracked(ctx, doc)
	if err != nil {
		return err
	}
	if !tracked {
		return fmt.Errorf("%w: %s", ErrDocumentNotRegistered, Key(doc))
	}

	node, _, err := c.resolve(ctx, doc, modeStrict)
	if err != nil {
		return err
	}

	if o.cascade {
		parent := ParentOf(doc)
		for _, related := range c.walker.DirectRelations(doc) {
			mode := modePermissive
			if parent != nil && Key(related) == Key(parent) {
				mode = modeStrict
			}
			if err := c.registerRelated(ctx, related, mode, o.force); err != nil {
				return err
			}
		}
	}

	if err := c.publishedRegistry.Register(ctx, doc, node); err != nil {
		return storeError("register published node", err)
	}
	c.logger.DebugContext(ctx, "Registered document",
		"document", doc.Identifier(),
		"locale", doc.Locale(),
		"path", node.Path)
	return nil
}

func (c *Coordinator) registerRelated(ctx context.Context, doc Document, mode resolveMode, force bool) error {
	if !force {
		bound, err := c.isBound(ctx, doc)
		if err != nil || bound {
			return err
		}
	}

	tracked, err := c.isTracked(ctx, doc)
	if err != nil {
		return err
	}
	if !tracked {
		c.logger.DebugContext(ctx, "Skipping untracked relation", "document", doc.Identifier())
		return nil
	}

	node, ok, err := c.resolve(ctx, doc, mode)
	if err != nil || !ok {
		return err
	}
	if err := c.publishedRegistry.Register(ctx, doc, node); err != nil {
		return storeError("register published node", err)
	}
	return nil
}

// resolve returns false only for a permissive resolution left pending.
func (c *Coordinator) resolve(ctx context.Context, doc Document, mode resolveMode) (tree.NodeHandle, bool, error) {
	resolution, err := c.resolver.Resolve(ctx, doc)
	if err != nil {
		return tree.NodeHandle{}, false, err
	}

	if resolution.State == StateNeedsAncestorSync {
		if mode == modePermissive {
			c.metrics.RecordRegistration(ctx, doc.Locale(), "deferred")
			c.logger.DebugContext(ctx, "Leaving relation unresolved, parent not published",
				"document", doc.Identifier(),
				"path", doc.Path())
			return tree.NodeHandle{}, false, nil
		}

		parentPath := c.published.ParentPath(doc.Path())
		created, err := c.ancestors.syncPath(ctx, parentPath)
		c.metrics.RecordNodesCreated(ctx, "ancestor", created)
		if err != nil {
			return tree.NodeHandle{}, false, err
		}

		resolution, err = c.resolver.Resolve(ctx, doc)
		if err != nil {
			return tree.NodeHandle{}, false, err
		}
		if resolution.State == StateNeedsAncestorSync {
			return tree.NodeHandle{}, false, &IntegrityError{
				Path: parentPath,
				Err:  errors.New("ancestors still missing after synchronization"),
			}
		}
	}

	if resolution.Created() {
		c.metrics.RecordNodesCreated(ctx, "document", 1)
	}
	c.metrics.RecordRegistration(ctx, doc.Locale(), resolution.State.String())
	return resolution.Node, true, nil
}

func (c *Coordinator) isBound(ctx context.Context, doc Document) (bool, error) {
	_, ok, err := c.publishedRegistry.Lookup(ctx, doc)
	if err != nil {
		return false, storeError("lookup published registry", err)
	}
	return ok, nil
}

// isTracked reports whether doc is a first-class draft document. A tracked
// document whose draft node carries another identifier is an integrity error.
func (c *Coordinator) isTracked(ctx context.Context, doc Document) (bool, error) {
	node, ok, err := c.draftRegistry.Lookup(ctx, doc)
	if err != nil {
		return false, storeError("lookup draft registry", err)
	}
	if ok && node.Identifier != doc.Identifier() {
		return false, &IntegrityError{
			Path: node.Path,
			Err:  fmt.Errorf("draft registry holds identifier %s for document %s", node.Identifier, doc.Identifier()),
		}
	}
	return ok, nil
}

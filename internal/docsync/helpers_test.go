package docsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chronicle/docsync/internal/tree"
)

// fixture holds both sides of one publish session.
type fixture struct {
	draft             *tree.MemoryStore
	publishedBase     *tree.MemoryStore
	published         *tree.InstrumentedStore
	draftRegistry     *MemoryRegistry
	publishedRegistry *MemoryRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := tree.NewMemoryStore()
	return &fixture{
		draft:             tree.NewMemoryStore(),
		publishedBase:     base,
		published:         tree.Instrument(base),
		draftRegistry:     NewMemoryRegistry(),
		publishedRegistry: NewMemoryRegistry(),
	}
}

// track creates the draft node for doc and registers it as a first-class
// draft document.
func (f *fixture) track(t *testing.T, doc Document) {
	t.Helper()
	ctx := context.Background()
	node, err := f.draft.CreateAt(ctx, doc.Path(), doc.Identifier())
	require.NoError(t, err)
	require.NoError(t, f.draftRegistry.Register(ctx, doc, node))
}

// draftNode creates a draft node without registering a document for it.
func (f *fixture) draftNode(t *testing.T, path, id string) {
	t.Helper()
	_, err := f.draft.CreateAt(context.Background(), path, id)
	require.NoError(t, err)
}

// publish seeds the published store without going through the counters.
func (f *fixture) publish(t *testing.T, path, id string) {
	t.Helper()
	_, err := f.publishedBase.CreateAt(context.Background(), path, id)
	require.NoError(t, err)
}

func (f *fixture) coordinator(opts ...Option) *Coordinator {
	return New(f.draft, f.published, f.draftRegistry, f.publishedRegistry, opts...)
}

func (f *fixture) isBound(t *testing.T, doc Document) bool {
	t.Helper()
	_, ok, err := f.publishedRegistry.Lookup(context.Background(), doc)
	require.NoError(t, err)
	return ok
}

func entry(id, path string, parent Document, fields ...FieldMapping) *Entry {
	return &Entry{ID: id, NodePath: path, Lang: "en", ParentOf: parent, Fields: fields}
}

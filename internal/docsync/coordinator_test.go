package docsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"chronicle/docsync/internal/telemetry"
	"chronicle/docsync/internal/tree"
)

func TestRegisterDocument_CreatesMissingParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	f.track(t, home)
	f.track(t, about)

	c := f.coordinator()
	require.NoError(t, c.RegisterDocument(ctx, about))

	assert.Equal(t, []tree.NodeHandle{
		{Identifier: "1", Path: "/home"},
		{Identifier: "2", Path: "/home/about"},
	}, f.publishedBase.Nodes())
	assert.Equal(t, int64(2), f.published.Writes())
	assert.True(t, f.isBound(t, about))
	assert.True(t, f.isBound(t, home))

	reads := f.published.Reads()
	require.NoError(t, c.RegisterDocument(ctx, about))
	assert.Equal(t, int64(2), f.published.Writes())
	assert.Equal(t, reads, f.published.Reads())
}

func TestRegisterDocument_ForceIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	f.track(t, home)
	f.track(t, about)

	c := f.coordinator()
	require.NoError(t, c.RegisterDocument(ctx, about))
	before := f.publishedBase.Nodes()

	require.NoError(t, c.RegisterDocument(ctx, about, WithForce()))
	assert.Equal(t, before, f.publishedBase.Nodes())
	assert.Equal(t, int64(2), f.published.Writes())
}

func TestRegisterDocument_PreservesIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	doc := entry("42", "/home", nil)
	f.track(t, doc)
	f.publish(t, "/home", "42")

	require.NoError(t, f.coordinator().RegisterDocument(ctx, doc))

	node, ok, err := f.publishedRegistry.Lookup(ctx, doc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tree.NodeHandle{Identifier: "42", Path: "/home"}, node)
	assert.Equal(t, int64(0), f.published.Writes())
}

func TestRegisterDocument_CompletesAncestors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.draftNode(t, "/a", "10")
	f.draftNode(t, "/a/b", "11")
	c := entry("12", "/a/b/c", nil)
	f.track(t, c)

	require.NoError(t, f.coordinator().RegisterDocument(ctx, c))

	for _, node := range []tree.NodeHandle{
		{Identifier: "10", Path: "/a"},
		{Identifier: "11", Path: "/a/b"},
		{Identifier: "12", Path: "/a/b/c"},
	} {
		found, err := f.publishedBase.FindByPath(ctx, node.Path)
		require.NoError(t, err)
		assert.Equal(t, node, found)
	}
}

func TestRegisterDocument_ConflictAtPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	f.track(t, home)
	f.track(t, about)
	f.publish(t, "/home", "1")
	f.publish(t, "/home/about", "99")
	before := f.publishedBase.Nodes()

	err := f.coordinator().RegisterDocument(ctx, about)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var conflict *SynchronizationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/home/about", conflict.Path)
	assert.Equal(t, "99", conflict.FoundIdentifier)
	assert.Equal(t, "2", conflict.ExpectedIdentifier)

	assert.Equal(t, before, f.publishedBase.Nodes())
	assert.Equal(t, 0, f.publishedRegistry.Len())
}

func TestRegisterDocument_ConflictOnParentLeavesDocumentUnbound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	f.track(t, home)
	f.track(t, about)
	f.publish(t, "/home", "7")

	err := f.coordinator().RegisterDocument(ctx, about)
	var conflict *SynchronizationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/home", conflict.Path)
	assert.Equal(t, "7", conflict.FoundIdentifier)
	assert.Equal(t, "1", conflict.ExpectedIdentifier)
	assert.False(t, f.isBound(t, about))
	assert.False(t, f.isBound(t, home))
}

func TestRegisterDocument_AncestorConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.draftNode(t, "/a", "10")
	f.draftNode(t, "/a/b", "11")
	c := entry("12", "/a/b/c", nil)
	f.track(t, c)
	f.publish(t, "/a", "99")

	err := f.coordinator().RegisterDocument(ctx, c)
	var conflict *SynchronizationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/a", conflict.Path)
	assert.Equal(t, int64(0), f.published.Writes())
	assert.False(t, f.isBound(t, c))
}

func TestRegisterDocument_MissingDraftAncestor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.draftNode(t, "/a", "10")
	c := entry("12", "/a/b/c", nil)
	// Tracked without a backing draft node for /a/b.
	require.NoError(t, f.draftRegistry.Register(ctx, c, tree.NodeHandle{Identifier: "12", Path: "/a/b/c"}))

	err := f.coordinator().RegisterDocument(ctx, c)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "/a/b", integrity.Path)
	assert.False(t, IsConflict(err))
	assert.False(t, f.isBound(t, c))
}

func TestRegisterDocument_NotRegistered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := entry("1", "/home", nil)
	f.draftNode(t, "/home", "1")

	err := f.coordinator().RegisterDocument(context.Background(), doc)
	require.ErrorIs(t, err, ErrDocumentNotRegistered)
	assert.Equal(t, int64(0), f.published.Writes())
}

func TestRegisterDocument_NilDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var doc *Entry
	require.Error(t, f.coordinator().RegisterDocument(context.Background(), doc))
}

func TestRegisterDocument_PropagatesRelations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	blog := entry("20", "/blog", nil)
	people := entry("40", "/people", nil)
	jane := entry("41", "/people/jane", people)
	news := entry("30", "/news", nil)
	item := entry("31", "/news/item", news)
	stranger := entry("50", "/stranger", nil)
	post := entry("21", "/blog/post", blog,
		FieldMapping{Name: "title", Value: "Hello"},
		FieldMapping{Name: "author", Value: jane},
		FieldMapping{Name: "related", Value: []any{item, "note", 3}},
		FieldMapping{Name: "mention", Value: stranger},
	)
	for _, doc := range []*Entry{blog, people, jane, news, item, post} {
		f.track(t, doc)
	}
	f.draftNode(t, "/stranger", "50")
	f.publish(t, "/people", "40")

	require.NoError(t, f.coordinator().RegisterDocument(ctx, post))

	assert.Equal(t, []tree.NodeHandle{
		{Identifier: "20", Path: "/blog"},
		{Identifier: "21", Path: "/blog/post"},
		{Identifier: "40", Path: "/people"},
		{Identifier: "41", Path: "/people/jane"},
	}, f.publishedBase.Nodes())

	assert.True(t, f.isBound(t, post))
	assert.True(t, f.isBound(t, blog))
	assert.True(t, f.isBound(t, jane))
	// Parent of the relation is not published yet.
	assert.False(t, f.isBound(t, item))
	// Relations are not followed transitively.
	assert.False(t, f.isBound(t, people))
	assert.False(t, f.isBound(t, stranger))
}

func TestRegisterDocument_RelationConflictAbortsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	jane := entry("41", "/jane", nil)
	post := entry("21", "/post", nil, FieldMapping{Name: "author", Value: jane})
	f.track(t, jane)
	f.track(t, post)
	f.publish(t, "/jane", "77")

	err := f.coordinator().RegisterDocument(ctx, post)
	require.True(t, IsConflict(err))
	assert.False(t, f.isBound(t, post))
	assert.False(t, f.isBound(t, jane))
}

func TestRegisterDocument_WithoutCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	f.track(t, home)
	f.track(t, about)

	require.NoError(t, f.coordinator().RegisterDocument(ctx, about, WithoutCascade()))

	assert.Equal(t, int64(2), f.published.Writes())
	assert.True(t, f.isBound(t, about))
	assert.False(t, f.isBound(t, home))
	assert.Equal(t, 1, f.publishedRegistry.Len())
}

func TestRegisterDocument_StoreFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := entry("1", "/home", nil)
	f.track(t, doc)
	boom := errors.New("connection reset")

	c := New(f.draft, failingStore{Store: f.published, err: boom}, f.draftRegistry, f.publishedRegistry)
	err := c.RegisterDocument(context.Background(), doc)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "lookup published identifier", storeErr.Op)
}

func TestRegisterDocument_PublishedTreeSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	docs := map[string]*Entry{}
	add := func(id, path, parentID string) *Entry {
		var parent Document
		if p, ok := docs[parentID]; ok {
			parent = p
		}
		doc := entry(id, path, parent)
		docs[id] = doc
		f.track(t, doc)
		return doc
	}
	add("1", "/home", "")
	add("2", "/home/about", "1")
	add("3", "/home/about/team", "2")
	add("4", "/home/contact", "1")
	add("5", "/blog", "")
	add("6", "/blog/2026", "5")
	post := add("7", "/blog/2026/launch", "6")
	post.Fields = []FieldMapping{{Name: "see_also", Value: docs["4"]}}

	c := f.coordinator()
	require.NoError(t, c.RegisterDocument(ctx, docs["3"]))
	require.NoError(t, c.RegisterDocument(ctx, post))

	var b strings.Builder
	for _, node := range f.publishedBase.Nodes() {
		fmt.Fprintf(&b, "%s %s\n", node.Path, node.Identifier)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "published_tree", []byte(b.String()))
}

func TestRegisterDocument_RecordsMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()
	metrics, err := telemetry.NewSyncMetrics(mp)
	require.NoError(t, err)

	f := newFixture(t)
	home := entry("1", "/home", nil)
	about := entry("2", "/home/about", home)
	clash := entry("3", "/clash", nil)
	f.track(t, home)
	f.track(t, about)
	f.track(t, clash)
	f.publish(t, "/clash", "99")

	c := f.coordinator(WithSyncMetrics(metrics))
	require.NoError(t, c.RegisterDocument(ctx, about))
	require.Error(t, c.RegisterDocument(ctx, clash))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	// about created, home resolved through the parent relation.
	assert.Equal(t, int64(2), totals["docsync_registrations_total"])
	assert.Equal(t, int64(2), totals["docsync_nodes_created_total"])
	assert.Equal(t, int64(1), totals["docsync_conflicts_total"])
}

// failingStore fails every lookup.
type failingStore struct {
	tree.Store
	err error
}

func (s failingStore) HasIdentifier(context.Context, string) (bool, error) {
	return false, s.err
}

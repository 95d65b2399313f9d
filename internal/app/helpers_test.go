package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"chronicle/docsync/internal/search"
	"chronicle/docsync/internal/store"
)

func createTestWorkspaces(t *testing.T) (*store.Workspaces, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "docsync.db")
	if err := store.ApplyMigrations(store.DriverSQLite, path); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	db, err := store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewWorkspaces(db, "draft", "published"), db
}

// seedDrafts writes a small draft site:
//
//	/home              1
//	/home/about        2  (author -> 4, related -> 5)
//	/people            folder
//	/people/jane       4
//	/news              5
func seedDrafts(t *testing.T, svc *Service) {
	t.Helper()
	drafts := []DraftInput{
		{ID: "1", Path: "/home", Title: "Home"},
		{ID: "4", Path: "/people/jane", Title: "Jane"},
		{ID: "5", Path: "/news", Title: "News"},
		{ID: "2", Path: "/home/about", Title: "About", Fields: []DraftField{
			{Name: "body", Kind: store.FieldString, Value: "We write documents"},
			{Name: "author", Kind: store.FieldRef, RefID: "4"},
			{Name: "related", Kind: store.FieldRefs, RefID: "5"},
		}},
	}
	for _, draft := range drafts {
		draft.Locale = "en"
		if _, err := svc.SaveDraft(context.Background(), draft); err != nil {
			t.Fatalf("SaveDraft(%s) error = %v", draft.ID, err)
		}
	}
}

func publishedPaths(t *testing.T, svc *Service) map[string]string {
	t.Helper()
	nodes, err := svc.PublishedNodes(context.Background())
	if err != nil {
		t.Fatalf("PublishedNodes() error = %v", err)
	}
	paths := make(map[string]string, len(nodes))
	for _, node := range nodes {
		paths[node.Path] = node.ID
	}
	return paths
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &payload)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

// fakeSearch records indexed documents and answers queries by title.
type fakeSearch struct {
	mu      sync.Mutex
	indexed map[string]search.PublishedRecord
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{indexed: map[string]search.PublishedRecord{}}
}

func (f *fakeSearch) Healthy() bool { return true }

func (f *fakeSearch) Search(q search.Query) ([]search.Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []search.Result
	for _, rec := range f.indexed {
		if rec.Title == q.Text && (q.Locale == "" || rec.Locale == q.Locale) {
			results = append(results, search.Result{ID: rec.ID, Locale: rec.Locale, Path: rec.Path, Title: rec.Title})
		}
	}
	return results, len(results), nil
}

func (f *fakeSearch) IndexPublished(rec search.PublishedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[rec.Key] = rec
	return nil
}

func (f *fakeSearch) DeletePublished(id, locale string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, search.RecordKey(id, locale))
	return nil
}

func (f *fakeSearch) record(id, locale string) (search.PublishedRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.indexed[search.RecordKey(id, locale)]
	return rec, ok
}

package search

import "strings"

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Locale  string `json:"locale"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Locale string // empty = all locales
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push published documents into a search index.
type Indexer interface {
	IndexPublished(rec PublishedRecord) error
	DeletePublished(id, locale string) error
}

// PublishedRecord is the data we index for a published document.
type PublishedRecord struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Locale string `json:"locale"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// RecordKey builds the index primary key for a document in a locale. Meilisearch
// only accepts alphanumerics, '-' and '_' in keys.
func RecordKey(id, locale string) string {
	var b strings.Builder
	for _, r := range id + "-" + locale {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

package search

import (
	"log/slog"
	"sync"
)

// Backend is a search engine that can both index and query.
type Backend interface {
	Searcher
	Indexer
}

// Service is the facade used by the publisher. A nil or unhealthy backend turns
// indexing into a no-op and searches into empty responses.
type Service struct {
	backend Backend
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewService creates a search service. backend may be nil if Meilisearch is not configured.
func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

func (s *Service) available() bool {
	return s != nil && s.backend != nil && s.backend.Healthy()
}

// Search queries the backend; failures are logged and yield no results.
func (s *Service) Search(q Query) Response {
	if !s.available() {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.backend.Search(q)
	if err != nil {
		s.logger.Warn("Search failed", "query", q.Text, "error", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}
}

// IndexPublished indexes a published document (fire-and-forget).
func (s *Service) IndexPublished(rec PublishedRecord) {
	if !s.available() {
		return
	}
	if rec.Key == "" {
		rec.Key = RecordKey(rec.ID, rec.Locale)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.IndexPublished(rec); err != nil {
			s.logger.Warn("Index published document failed", "id", rec.ID, "locale", rec.Locale, "error", err)
		}
	}()
}

// DeletePublished removes a document from the index (fire-and-forget).
func (s *Service) DeletePublished(id, locale string) {
	if !s.available() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.DeletePublished(id, locale); err != nil {
			s.logger.Warn("Delete published document failed", "id", id, "locale", locale, "error", err)
		}
	}()
}

// Wait blocks until pending index operations finish.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

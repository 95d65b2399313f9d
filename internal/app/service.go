package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chronicle/docsync/internal/docsync"
	"chronicle/docsync/internal/gitrepo"
	"chronicle/docsync/internal/search"
	"chronicle/docsync/internal/session"
	"chronicle/docsync/internal/store"
	"chronicle/docsync/internal/telemetry"
	"chronicle/docsync/internal/tree"
	"chronicle/docsync/internal/util"
)

// DefaultLocale is used when a request does not name one.
const DefaultLocale = "en"

const publishedRegistryName = "published"

type PublishInput struct {
	DocumentIDs []string `json:"documentIds"`
	Locale      string   `json:"locale"`
	// SessionID reuses the published registry of an earlier request. Only
	// meaningful with a Redis session store; empty opens a fresh session that
	// is cleared once the request completes.
	SessionID string `json:"sessionId"`
	Force     bool   `json:"force"`
}

type PublishedDocument struct {
	DocumentID string `json:"documentId"`
	Locale     string `json:"locale"`
	Path       string `json:"path"`
	Title      string `json:"title"`
}

type PublishResult struct {
	SessionID string              `json:"sessionId"`
	Locale    string              `json:"locale"`
	Documents []PublishedDocument `json:"documents"`
	// Created is the number of nodes written to the published store.
	Created int64 `json:"created"`
}

type DraftField struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
	RefID string `json:"refId,omitempty"`
}

type DraftInput struct {
	ID     string       `json:"id"`
	Locale string       `json:"locale"`
	Path   string       `json:"path"`
	Title  string       `json:"title"`
	Fields []DraftField `json:"fields"`
}

type DraftResult struct {
	DocumentID string `json:"documentId"`
	Locale     string `json:"locale"`
	Path       string `json:"path"`
	// Folders lists the draft nodes created for missing ancestors.
	Folders []string `json:"folders"`
}

type PublishedNode struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type Publication struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	workspaces *store.Workspaces
	publishes  *store.PublishLog
	git        *gitrepo.Store
	sessions   *session.RedisStore
	search     *search.Service
	metrics    *telemetry.SyncMetrics
	logger     *slog.Logger
}

// New creates a publish service. git may be nil, in which case published nodes
// live in the published SQL workspace.
func New(workspaces *store.Workspaces, git *gitrepo.Store, searchService *search.Service) *Service {
	return &Service{
		workspaces: workspaces,
		publishes:  store.NewPublishLog(workspaces.DB()),
		git:        git,
		search:     searchService,
		logger:     slog.Default(),
	}
}

// NewWithSessionStore creates a publish service whose published registries are
// kept in Redis, so a session can span requests served by different replicas.
func NewWithSessionStore(workspaces *store.Workspaces, sessions *session.RedisStore, git *gitrepo.Store, searchService *search.Service) *Service {
	s := New(workspaces, git, searchService)
	s.sessions = sessions
	return s
}

func (s *Service) WithMetrics(metrics *telemetry.SyncMetrics) *Service {
	s.metrics = metrics
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.workspaces.DB().PingContext(ctx)
}

// PingSessions reports the health of the Redis session store, if configured.
func (s *Service) PingSessions(ctx context.Context) (bool, error) {
	if s.sessions == nil {
		return false, nil
	}
	return true, s.sessions.Ping(ctx)
}

// Publish copies one draft document, its missing ancestors and its direct
// relations into the published store.
func (s *Service) Publish(ctx context.Context, documentID, locale string) (PublishResult, error) {
	return s.PublishMany(ctx, PublishInput{DocumentIDs: []string{documentID}, Locale: locale})
}

// PublishMany publishes every listed document in one session and one
// transaction. Either all of them are published or none is.
func (s *Service) PublishMany(ctx context.Context, input PublishInput) (PublishResult, error) {
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	ids := normalizeIDs(input.DocumentIDs)
	if len(ids) == 0 {
		return PublishResult{}, validationError("At least one document id is required", nil)
	}

	sessionID := strings.TrimSpace(input.SessionID)
	owned := sessionID == ""
	if owned {
		sessionID = util.NewID("sess")
	} else if !session.ValidID(sessionID) {
		return PublishResult{}, validationError("Session id may only contain letters, digits, '-' and '_'", map[string]any{"sessionId": sessionID})
	}
	logger := s.requestLogger(ctx).With("session_id", sessionID)
	registry := s.publishedRegistry(sessionID)

	var opts []docsync.RegisterOption
	if input.Force {
		opts = append(opts, docsync.WithForce())
	}

	result := PublishResult{SessionID: sessionID, Locale: locale}
	var entries []*docsync.Entry
	current := ""
	err := s.workspaces.Run(ctx, func(scope store.Scope) error {
		published := tree.Instrument(s.publishedStore(scope))
		coordinator := docsync.New(scope.Draft, published, scope.Documents, registry,
			docsync.WithLogger(logger),
			docsync.WithSyncMetrics(s.metrics),
		)
		entries = entries[:0]
		for _, id := range ids {
			current = id
			doc, err := scope.Content.LoadDocument(ctx, id, locale)
			if err != nil {
				return err
			}
			if err := coordinator.RegisterDocument(ctx, doc, opts...); err != nil {
				return err
			}
			entries = append(entries, doc)
		}
		result.Created = published.Writes()
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, logger, sessionID, current, locale, err)
		// Bindings made before the failure point at rolled-back nodes.
		s.clearSession(ctx, sessionID)
		return PublishResult{}, err
	}

	for _, doc := range entries {
		result.Documents = append(result.Documents, PublishedDocument{
			DocumentID: doc.Identifier(),
			Locale:     doc.Locale(),
			Path:       doc.Path(),
			Title:      doc.Title,
		})
		s.record(ctx, store.PublishEvent{
			SessionID:  sessionID,
			DocumentID: doc.Identifier(),
			Locale:     doc.Locale(),
			Outcome:    store.OutcomePublished,
			Detail:     doc.Path(),
		})
		s.search.IndexPublished(publishedRecord(doc))
	}
	if owned {
		s.clearSession(ctx, sessionID)
	}

	logger.InfoContext(ctx, "Published documents",
		"locale", locale,
		"documents", len(result.Documents),
		"created", result.Created,
	)
	return result, nil
}

// SaveDraft writes a draft document. Missing draft ancestors are created as
// folder nodes so the document can be published later.
func (s *Service) SaveDraft(ctx context.Context, input DraftInput) (DraftResult, error) {
	id := strings.TrimSpace(input.ID)
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	path := strings.TrimSpace(input.Path)
	if id == "" {
		return DraftResult{}, validationError("Document id is required", nil)
	}
	if err := tree.ValidatePath(path); err != nil || path == tree.RootPath {
		return DraftResult{}, validationError("Path must be a clean absolute path below the root", map[string]any{"path": path})
	}
	fields := make([]store.FieldRecord, 0, len(input.Fields))
	for _, field := range input.Fields {
		if !validFieldKind(field.Kind) {
			return DraftResult{}, validationError("Unknown field kind", map[string]any{"field": field.Name, "kind": field.Kind})
		}
		fields = append(fields, store.FieldRecord{Name: field.Name, Kind: field.Kind, Value: field.Value, RefID: field.RefID})
	}

	result := DraftResult{DocumentID: id, Locale: locale, Path: path, Folders: []string{}}
	err := s.workspaces.Run(ctx, func(scope store.Scope) error {
		exists, err := scope.Draft.HasIdentifier(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			node, err := scope.Draft.FindByIdentifier(ctx, id)
			if err != nil {
				return err
			}
			if node.Path != path {
				return domainError(http.StatusConflict, "PATH_MISMATCH", "Document already has a draft node at another path", map[string]any{"path": node.Path})
			}
		} else {
			folders, err := ensureDraftAncestors(ctx, scope.Draft, tree.ParentPath(path))
			if err != nil {
				return err
			}
			result.Folders = folders
			if _, err := scope.Draft.CreateAt(ctx, path, id); err != nil {
				if errors.Is(err, tree.ErrPathExists) {
					return domainError(http.StatusConflict, "PATH_TAKEN", "Another draft node already uses this path", map[string]any{"path": path})
				}
				return err
			}
		}
		return scope.Content.SaveDocument(ctx, store.DocumentRecord{
			ID:     id,
			Locale: locale,
			Title:  strings.TrimSpace(input.Title),
			Fields: fields,
		})
	})
	if err != nil {
		return DraftResult{}, err
	}
	return result, nil
}

// Publications lists the publish events of a document, newest first.
func (s *Service) Publications(ctx context.Context, documentID, locale string, limit int) ([]Publication, error) {
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	events, err := s.publishes.List(ctx, documentID, locale, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Publication, 0, len(events))
	for _, event := range events {
		items = append(items, Publication{
			ID:        event.ID,
			SessionID: event.SessionID,
			Outcome:   event.Outcome,
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt,
		})
	}
	return items, nil
}

// PublishedNodes lists every node of the published store ordered by path.
func (s *Service) PublishedNodes(ctx context.Context) ([]PublishedNode, error) {
	if s.git != nil {
		handles := s.git.Nodes()
		nodes := make([]PublishedNode, 0, len(handles))
		for _, handle := range handles {
			nodes = append(nodes, PublishedNode{ID: handle.Identifier, Path: handle.Path})
		}
		return nodes, nil
	}
	rows, err := s.workspaces.Scope().Published.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]PublishedNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, PublishedNode{ID: row.ID, Path: row.Path})
	}
	return nodes, nil
}

// History lists publish commits; only the git backend keeps one.
func (s *Service) History(limit int) ([]gitrepo.CommitInfo, error) {
	if s.git == nil {
		return nil, domainError(http.StatusNotFound, "HISTORY_UNAVAILABLE", "Publish history requires the git published backend", nil)
	}
	return s.git.History(limit)
}

func (s *Service) Search(q search.Query) search.Response {
	if strings.TrimSpace(q.Locale) == "" {
		q.Locale = DefaultLocale
	}
	return s.search.Search(q)
}

func (s *Service) publishedStore(scope store.Scope) tree.Store {
	if s.git != nil {
		return s.git
	}
	return scope.Published
}

func (s *Service) publishedRegistry(sessionID string) docsync.Registry {
	if s.sessions != nil {
		return s.sessions.Registry(sessionID, publishedRegistryName)
	}
	return docsync.NewMemoryRegistry()
}

// requestLogger tags the service logger with the request id set by the HTTP
// middleware, when there is one.
func (s *Service) requestLogger(ctx context.Context) *slog.Logger {
	if id := requestIDFrom(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

func (s *Service) clearSession(ctx context.Context, sessionID string) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.Clear(context.WithoutCancel(ctx), sessionID); err != nil {
		s.logger.WarnContext(ctx, "Clear session registry failed", "session_id", sessionID, "error", err)
	}
}

func (s *Service) recordFailure(ctx context.Context, logger *slog.Logger, sessionID, documentID, locale string, cause error) {
	if documentID == "" {
		return
	}
	outcome := store.OutcomeFailed
	if docsync.IsConflict(cause) {
		outcome = store.OutcomeConflict
	}
	logger.WarnContext(ctx, "Publish failed",
		"document_id", documentID,
		"locale", locale,
		"outcome", outcome,
		"error", cause,
	)
	s.record(ctx, store.PublishEvent{
		SessionID:  sessionID,
		DocumentID: documentID,
		Locale:     locale,
		Outcome:    outcome,
		Detail:     cause.Error(),
	})
}

func (s *Service) record(ctx context.Context, event store.PublishEvent) {
	if _, err := s.publishes.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "Record publish event failed", "document_id", event.DocumentID, "error", err)
	}
}

func ensureDraftAncestors(ctx context.Context, draft *store.TreeStore, parent string) ([]string, error) {
	created := []string{}
	if parent == "" || parent == tree.RootPath {
		return created, nil
	}
	for _, prefix := range tree.Prefixes(parent) {
		exists, err := draft.HasPath(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if _, err := draft.CreateAt(ctx, prefix, util.NewID("folder")); err != nil {
			return nil, fmt.Errorf("create draft folder %s: %w", prefix, err)
		}
		created = append(created, prefix)
	}
	return created, nil
}

func publishedRecord(doc *docsync.Entry) search.PublishedRecord {
	var body []string
	for _, field := range doc.FieldMappings() {
		if text, ok := field.Value.(string); ok && text != "" {
			body = append(body, text)
		}
	}
	return search.PublishedRecord{
		ID:     doc.Identifier(),
		Locale: doc.Locale(),
		Path:   doc.Path(),
		Title:  doc.Title,
		Body:   strings.Join(body, "\n"),
	}
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validFieldKind(kind string) bool {
	switch kind {
	case store.FieldString, store.FieldInt, store.FieldBool, store.FieldTime, store.FieldRef, store.FieldRefs:
		return true
	}
	return false
}

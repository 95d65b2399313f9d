package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chronicle/docsync/internal/search"
	"chronicle/docsync/internal/store"
)

func TestHealthEndpoint(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	server := NewHTTPServer(New(ws, nil, nil), "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	decodeJSON(t, rr, &response)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected CORS origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	ws, db := createTestWorkspaces(t)
	server := NewHTTPServer(New(ws, nil, nil), "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var ready map[string]any
	decodeJSON(t, rr, &ready)
	if ready["status"] != "ready" {
		t.Fatalf("expected status ready, got %v", ready["status"])
	}
	checks := ready["checks"].(map[string]any)
	if _, ok := checks["sessions"]; ok {
		t.Fatal("sessions check reported without a session store")
	}

	_ = db.Close()
	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 after close, got %d", rr.Code)
	}
	var notReady map[string]any
	decodeJSON(t, rr, &notReady)
	if notReady["ok"] != false || notReady["status"] != "not_ready" {
		t.Fatalf("unexpected body %v", notReady)
	}
}

func TestPublishEndpoint(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	server := NewHTTPServer(New(ws, nil, nil), "*")
	handler := server.Handler()

	drafts := []struct {
		id   string
		body DraftInput
	}{
		{id: "1", body: DraftInput{Path: "/home", Title: "Home"}},
		{id: "2", body: DraftInput{Path: "/home/about", Title: "About", Fields: []DraftField{
			{Name: "body", Kind: store.FieldString, Value: "Hello"},
		}}},
	}
	for _, draft := range drafts {
		rr := doJSON(t, handler, http.MethodPut, "/api/documents/"+draft.id+"?locale=en", draft.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("PUT draft %s: status %d body %s", draft.id, rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/documents/2/publish?locale=en", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("publish: status %d body %s", rr.Code, rr.Body.String())
	}
	var result PublishResult
	decodeJSON(t, rr, &result)
	if result.Created != 2 || len(result.Documents) != 1 || result.Documents[0].DocumentID != "2" {
		t.Fatalf("result = %+v", result)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/published", nil)
	var published struct {
		Nodes []PublishedNode `json:"nodes"`
	}
	decodeJSON(t, rr, &published)
	if len(published.Nodes) != 2 || published.Nodes[0].Path != "/home" || published.Nodes[1].Path != "/home/about" {
		t.Fatalf("published nodes = %+v", published.Nodes)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/documents/2/publications?locale=en", nil)
	var publications struct {
		Items []Publication `json:"items"`
	}
	decodeJSON(t, rr, &publications)
	if len(publications.Items) != 1 || publications.Items[0].Outcome != store.OutcomePublished {
		t.Fatalf("publications = %+v", publications.Items)
	}
}

func TestPublishEndpointBatch(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	svc := New(ws, nil, nil)
	seedDrafts(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/publish", PublishInput{DocumentIDs: []string{"1", "4"}, Locale: "en"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}
	var result PublishResult
	decodeJSON(t, rr, &result)
	if len(result.Documents) != 2 || result.Created != 3 {
		t.Fatalf("result = %+v", result)
	}
}

func TestPublishEndpointErrors(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	svc := New(ws, nil, nil)
	seedDrafts(t, svc)
	if _, err := ws.Scope().Published.CreateAt(t.Context(), "/home", "77"); err != nil {
		t.Fatalf("CreateAt() error = %v", err)
	}
	handler := NewHTTPServer(svc, "*").Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
		code   string
	}{
		{name: "conflict", method: http.MethodPost, target: "/api/documents/2/publish", status: http.StatusConflict, code: "PUBLISH_CONFLICT"},
		{name: "missing document", method: http.MethodPost, target: "/api/documents/nope/publish", status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "empty batch", method: http.MethodPost, target: "/api/publish", body: PublishInput{}, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "history on sql backend", method: http.MethodGet, target: "/api/published/history", status: http.StatusNotFound, code: "HISTORY_UNAVAILABLE"},
		{name: "search without query", method: http.MethodGet, target: "/api/search", status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "unknown route", method: http.MethodGet, target: "/api/nope", status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, handler, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			var body map[string]any
			decodeJSON(t, rr, &body)
			if body["code"] != tt.code {
				t.Fatalf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestConflictDetails(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	svc := New(ws, nil, nil)
	seedDrafts(t, svc)
	if _, err := ws.Scope().Published.CreateAt(t.Context(), "/news", "99"); err != nil {
		t.Fatalf("CreateAt() error = %v", err)
	}
	handler := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/documents/5/publish?locale=en", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Details map[string]string `json:"details"`
	}
	decodeJSON(t, rr, &body)
	if body.Details["path"] != "/news" || body.Details["foundIdentifier"] != "99" || body.Details["expectedIdentifier"] != "5" {
		t.Fatalf("details = %v", body.Details)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	index := newFakeSearch()
	searchService := search.NewService(index, nil)
	svc := New(ws, nil, searchService)
	seedDrafts(t, svc)
	if _, err := svc.Publish(t.Context(), "2", "en"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	searchService.Wait()

	rr := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/search?q=About", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var response search.Response
	decodeJSON(t, rr, &response)
	if response.Total != 1 || response.Results[0].Path != "/home/about" || response.Results[0].Locale != "en" {
		t.Fatalf("response = %+v", response)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("docsync_registrations_total 1\n"))
	})

	withMetrics := NewHTTPServer(New(ws, nil, nil), "*").WithMetricsHandler(metrics).Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	withMetrics.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "docsync_registrations_total") {
		t.Fatalf("metrics: status %d body %q", rr.Code, rr.Body.String())
	}

	without := NewHTTPServer(New(ws, nil, nil), "*").Handler()
	rr = httptest.NewRecorder()
	without.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rr.Code)
	}
}

func TestDecodeBodyRejectsInvalidJSON(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	handler := NewHTTPServer(New(ws, nil, nil), "*").Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRequestIDReachesServiceLogs(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	svc := New(ws, nil, nil).WithLogger(logger)
	seedDrafts(t, svc)
	handler := NewHTTPServer(svc, "*").WithLogger(logger).Handler()

	publish := func(requestID, documentID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/"+documentID+"/publish?locale=en", nil)
		req.Header.Set("X-Request-ID", requestID)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if got := rr.Header().Get("X-Request-ID"); got != requestID {
			t.Fatalf("X-Request-ID = %q, want %q", got, requestID)
		}
		return rr
	}

	if rr := publish("req-ok", "2"); rr.Code != http.StatusOK {
		t.Fatalf("publish: status %d body %s", rr.Code, rr.Body.String())
	}
	if rr := publish("req-missing", "nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("publish missing: status %d", rr.Code)
	}

	byMessage := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		msg, _ := record["msg"].(string)
		if id, ok := record["request_id"].(string); ok && msg != "HTTP request" {
			byMessage[msg] = id
		}
	}
	if byMessage["Published documents"] != "req-ok" {
		t.Errorf("Published documents request_id = %q, logs:\n%s", byMessage["Published documents"], logs.String())
	}
	if byMessage["Publish failed"] != "req-missing" {
		t.Errorf("Publish failed request_id = %q, logs:\n%s", byMessage["Publish failed"], logs.String())
	}
}

func TestPublishEndpointRejectsPatternSessionID(t *testing.T) {
	ws, _ := createTestWorkspaces(t)
	svc := New(ws, nil, nil)
	seedDrafts(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/documents/2/publish?locale=en", map[string]any{"sessionId": "*"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rr, &body)
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", body["code"])
	}
	if paths := publishedPaths(t, svc); len(paths) != 0 {
		t.Fatalf("rejected request published %v", paths)
	}
}

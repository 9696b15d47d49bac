package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/gherkin-agent/internal/application"
	appchat "github.com/bryanwahyu/gherkin-agent/internal/application/chat"
	appscans "github.com/bryanwahyu/gherkin-agent/internal/application/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/ai"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/prompts"
	"github.com/bryanwahyu/gherkin-agent/internal/middleware"
)

type memScanRepo struct {
	mu    sync.Mutex
	scans map[domain.ScanID]*domain.Scan
}

func newMemScanRepo() *memScanRepo {
	return &memScanRepo{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (r *memScanRepo) Create(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *memScanRepo) Get(_ context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != owner {
		return nil, domain.ErrScanNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memScanRepo) UpdateStatus(_ context.Context, id domain.ScanID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scans[id]; ok {
		s.Status = status
	}
	return nil
}

func (r *memScanRepo) SetSnapshot(_ context.Context, id domain.ScanID, snap *domain.PageSnapshot, snapshotURL string, scannedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scans[id]; ok {
		s.Snapshot = snap
		s.SnapshotURL = snapshotURL
		s.LastScannedAt = &scannedAt
	}
	return nil
}

func (r *memScanRepo) Latest(context.Context, string, int) ([]*domain.Scan, error) { return nil, nil }

func (r *memScanRepo) Paginate(_ context.Context, owner string, page, pageSize int, _ map[string]any) (domain.PaginatedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var data []*domain.Scan
	for _, s := range r.scans {
		if s.UserID == owner {
			cp := *s
			data = append(data, &cp)
		}
	}
	return domain.PaginatedResult{Data: data, Page: page, PageSize: pageSize, Total: int64(len(data))}, nil
}

func (r *memScanRepo) Delete(_ context.Context, owner string, id domain.ScanID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != owner {
		return false, nil
	}
	delete(r.scans, id)
	return true, nil
}

type memFeatureRepo struct {
	mu    sync.Mutex
	feats []*features.Feature
}

func (r *memFeatureRepo) Insert(_ context.Context, f *features.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.feats = append(r.feats, &cp)
	return nil
}

func (r *memFeatureRepo) GetByTitle(_ context.Context, scanID, title string) (*features.Feature, error) {
	return nil, features.ErrFeatureNotFound
}

func (r *memFeatureRepo) Update(context.Context, string, *string, *string) error { return nil }

func (r *memFeatureRepo) DeleteByTitle(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (r *memFeatureRepo) ListByScan(_ context.Context, scanID string) ([]*features.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*features.Feature
	for _, f := range r.feats {
		if f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, nil
}

type stubInspector struct{}

func (stubInspector) Inspect(_ context.Context, _ string) (*domain.PageSnapshot, error) {
	return &domain.PageSnapshot{Title: "Example", Content: "hello"}, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(context.Context, string, *domain.PageSnapshot, []*features.Feature) ([]features.Draft, error) {
	return []features.Draft{
		{Title: "Login", Description: "d", FilePath: "features/login.feature", Content: "Feature: Login"},
	}, nil
}

type scriptedModel struct {
	mu        sync.Mutex
	responses []ai.Message
}

func (m *scriptedModel) Complete(context.Context, string, []ai.Message, []ai.ToolDef) (ai.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

type stubPromptSource struct{}

func (stubPromptSource) Get(_ context.Context, name string) (prompts.Prompt, error) {
	return prompts.Prompt{Name: name, Source: "fallback", Template: "agent for {{url}}"}, nil
}

func newTestRouter(model ai.ChatModel) (http.Handler, *memScanRepo, *memFeatureRepo) {
	scanRepo := newMemScanRepo()
	featRepo := &memFeatureRepo{}
	scanSvc := &appscans.Service{
		Scans:       scanRepo,
		Features:    featRepo,
		Inspector:   stubInspector{},
		Synthesizer: stubSynthesizer{},
		Clock:       application.SystemClock{},
	}
	chatSvc := appchat.NewService(model, scanRepo, featRepo, stubPromptSource{}, application.SystemClock{}, nil)
	return NewRouter(scanSvc, chatSvc, nil), scanRepo, featRepo
}

func doJSON(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserKey, "alice"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateScanAcceptsImmediately(t *testing.T) {
	h, repo, feats := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/scans", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, string(domain.StatusProcessing), resp.Status)

	// background pipeline lands in completed with one feature
	require.Eventually(t, func() bool {
		s, err := repo.Get(context.Background(), "alice", domain.ScanID(resp.ID))
		return err == nil && s.Status == domain.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	list, err := feats.ListByScan(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateScanUpgradesSchemeRelativeURL(t *testing.T) {
	h, repo, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/scans", `{"url":"//example.com/login"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com/login", resp.URL)

	s, err := repo.Get(context.Background(), "alice", domain.ScanID(resp.ID))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/login", s.URL)
}

func TestCreateScanRejectsBadURL(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/scans", `{"url":"http://localhost/admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(h, http.MethodPost, "/v1/scans", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScanNotFound(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodGet, "/v1/scans/unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRescanWhileProcessingConflicts(t *testing.T) {
	h, repo, _ := newTestRouter(&scriptedModel{})

	require.NoError(t, repo.Create(context.Background(), &domain.Scan{
		ID: "busy-scan", UserID: "alice", URL: "https://example.com",
		Status: domain.StatusProcessing, CreatedAt: time.Now(),
	}))

	rec := doJSON(h, http.MethodPost, "/v1/scans/busy-scan/rescan", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteScan(t *testing.T) {
	h, repo, _ := newTestRouter(&scriptedModel{})

	require.NoError(t, repo.Create(context.Background(), &domain.Scan{
		ID: "gone-scan", UserID: "alice", URL: "https://example.com",
		Status: domain.StatusCompleted, CreatedAt: time.Now(),
	}))

	rec := doJSON(h, http.MethodDelete, "/v1/scans/gone-scan", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(h, http.MethodDelete, "/v1/scans/gone-scan", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveUnknownCallNotFound(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/chat/calls/nope", `{"approved":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveRequiresDecision(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/chat/calls/some-id", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStreamsEvents(t *testing.T) {
	model := &scriptedModel{responses: []ai.Message{
		{Role: ai.RoleAssistant, Content: "No features yet."},
	}}
	h, repo, _ := newTestRouter(model)

	require.NoError(t, repo.Create(context.Background(), &domain.Scan{
		ID: "chat-scan", UserID: "alice", URL: "https://example.com",
		Status: domain.StatusCompleted, CreatedAt: time.Now(),
		Snapshot: &domain.PageSnapshot{Title: "Example"},
	}))

	rec := doJSON(h, http.MethodPost, "/v1/scans/chat-scan/chat", `{"message":"what features exist?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: session")
	assert.Contains(t, body, "event: text")
	assert.Contains(t, body, "No features yet.")
	assert.Contains(t, body, "event: done")
}

func TestChatUnknownScanIsNotFound(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/scans/no-such-scan/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestChatRequiresMessage(t *testing.T) {
	h, _, _ := newTestRouter(&scriptedModel{})

	rec := doJSON(h, http.MethodPost, "/v1/scans/any/chat", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

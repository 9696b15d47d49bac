package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	appchat "github.com/bryanwahyu/gherkin-agent/internal/application/chat"
	appscans "github.com/bryanwahyu/gherkin-agent/internal/application/scans"
	domai "github.com/bryanwahyu/gherkin-agent/internal/domain/ai"
	featdomain "github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/middleware"
)

type Router struct {
	scansSvc *appscans.Service
	chatSvc  *appchat.Service
	log      *slog.Logger
}

func NewRouter(scansSvc *appscans.Service, chatSvc *appchat.Service, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{scansSvc: scansSvc, chatSvc: chatSvc, log: log}
	mux := chi.NewRouter()

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleCreateScan))
		rt.Get("/scans", r.wrap(r.handleListScans))
		rt.Get("/scans/{id}", r.wrap(r.handleGetScan))
		rt.Delete("/scans/{id}", r.wrap(r.handleDeleteScan))
		rt.Post("/scans/{id}/rescan", r.wrap(r.handleRescan))
		rt.Get("/scans/{id}/features", r.wrap(r.handleListFeatures))
		rt.Post("/scans/{id}/chat", r.wrap(r.handleChat))
		rt.Post("/chat/calls/{callID}", r.wrap(r.handleResolveCall))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrUnauthorized):
			http.Error(w, "unauthorized", http.StatusForbidden)
		case errors.Is(err, domain.ErrScanNotFound),
			errors.Is(err, featdomain.ErrFeatureNotFound),
			errors.Is(err, appchat.ErrCallNotFound),
			errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrScanBusy),
			errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, appchat.ErrAlreadyResolved),
			errors.Is(err, appchat.ErrTurnActive),
			errors.Is(err, appchat.ErrSessionScanMismatch):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		default:
			r.log.Error("request failed", "path", req.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func owner(req *http.Request) string {
	return middleware.GetUserFromContext(req.Context())
}

// POST /v1/scans
// Creates the scan, flips it to processing, and runs the pipeline in
// the background. The response acknowledges acceptance immediately and
// is independent of the pipeline outcome.
func (r *Router) handleCreateScan(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	// Normalize first so scheme-relative targets (//host) pass the SSRF
	// check in their upgraded https form.
	target, err := domain.NormalizeTarget(body.URL)
	if err != nil {
		return err
	}
	if err := middleware.ValidateScanURL(target); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	user := owner(req)
	scan, err := r.scansSvc.Create(req.Context(), user, target)
	if err != nil {
		return err
	}
	if _, err := r.scansSvc.Trigger(req.Context(), user, scan.ID); err != nil {
		return err
	}

	// 🚀 pipeline jalan di background sampai selesai
	r.scansSvc.RunDetached(user, scan.ID, scan.URL)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]any{
		"id":       scan.ID,
		"url":      scan.URL,
		"status":   domain.StatusProcessing,
		"message":  "scan started in background",
		"queuedAt": time.Now(),
	})
}

// POST /v1/scans/{id}/rescan
func (r *Router) handleRescan(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))
	user := owner(req)

	scan, err := r.scansSvc.Trigger(req.Context(), user, id)
	if err != nil {
		return err
	}
	r.scansSvc.RunDetached(user, scan.ID, scan.URL)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]any{
		"id":       scan.ID,
		"status":   scan.Status,
		"message":  "re-scan started in background",
		"queuedAt": time.Now(),
	})
}

// GET /v1/scans?page=&page_size=&status=&q=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	filters := map[string]any{}
	if v := req.URL.Query().Get("status"); v != "" {
		filters["status"] = v
	}
	if v := req.URL.Query().Get("q"); v != "" {
		filters["url"] = middleware.SanitizeString(v)
	}

	list, err := r.scansSvc.Paginate(req.Context(), owner(req), page, size, filters)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	scan, err := r.scansSvc.Get(req.Context(), owner(req), domain.ScanID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(scan)
}

// DELETE /v1/scans/{id}. Owner only; features cascade.
func (r *Router) handleDeleteScan(w http.ResponseWriter, req *http.Request) error {
	if err := r.scansSvc.Delete(req.Context(), owner(req), domain.ScanID(chi.URLParam(req, "id"))); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/scans/{id}/features
func (r *Router) handleListFeatures(w http.ResponseWriter, req *http.Request) error {
	list, err := r.scansSvc.ListFeatures(req.Context(), owner(req), domain.ScanID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*featdomain.Feature{}
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	// Messages seeds a new session with client-held conversation history.
	Messages []domai.Message `json:"messages,omitempty"`
	Message  string          `json:"message"`
}

// POST /v1/scans/{id}/chat streams the agent turn as SSE. The stream
// stays open across approval waits; tool resolutions arrive on the
// separate resolution endpoint and resume this turn.
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) error {
	scanID := chi.URLParam(req, "id")

	var body chatRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if body.Message == "" {
		return fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	// Ownership check before the response commits to SSE, so an unknown
	// or foreign scan still gets a proper 404 status line.
	if _, err := r.scansSvc.Get(req.Context(), owner(req), domain.ScanID(scanID)); err != nil {
		return err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	var mu sync.Mutex
	emit := func(ev appchat.Event) {
		mu.Lock()
		defer mu.Unlock()
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	err := r.chatSvc.Turn(req.Context(), owner(req), scanID, body.SessionID, body.Messages, body.Message, emit)
	if err != nil && !errors.Is(err, req.Context().Err()) {
		// Headers are gone; report on the stream instead.
		emit(appchat.Event{Type: appchat.EventError, Text: err.Error(), IsError: true})
	}
	return nil
}

// POST /v1/chat/calls/{callID}
// Body: {"approved": true|false}. Exactly one resolution per call.
func (r *Router) handleResolveCall(w http.ResponseWriter, req *http.Request) error {
	callID := chi.URLParam(req, "callID")
	if err := middleware.ValidateID(callID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var body struct {
		Approved *bool `json:"approved"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if body.Approved == nil {
		return fmt.Errorf("%w: approved is required", domain.ErrInvalidInput)
	}

	if err := r.chatSvc.Resolve(callID, *body.Approved); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"call_id":  callID,
		"approved": *body.Approved,
	})
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Zerr0-C00L/rdfetch/internal/magnet"
	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/availability"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// Handler serves the REST and WebSocket surface of the debrid manager.
type Handler struct {
	manager *services.DebridManager
	scanner *AvailabilityScanner
	feed    *notify.Feed
	hub     *Hub
	logger  *slog.Logger
	// background runs outlive the request that started them
	baseCtx context.Context
}

// NewHandler wires the handler. baseCtx bounds every background run.
func NewHandler(baseCtx context.Context, manager *services.DebridManager, scanner *AvailabilityScanner, feed *notify.Feed, hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if scanner == nil {
		scanner = NewAvailabilityScanner(manager, 0, logger)
	}
	return &Handler{
		manager: manager,
		scanner: scanner,
		feed:    feed,
		hub:     hub,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

type availabilityRequest struct {
	Results []models.SearchResult `json:"results"`
}

type availabilityResponse struct {
	Results []services.ResultStatus `json:"results"`
	Cached  int                     `json:"cached"`
}

type recordResponse struct {
	Hash   string                     `json:"hash"`
	Status availability.Status        `json:"status"`
	Record *debrid.AvailabilityRecord `json:"record,omitempty"`
}

type selectRequest struct {
	Result models.SearchResult `json:"result"`
}

type resolveRequest struct {
	Result models.SearchResult `json:"result"`
	File   *debrid.FileChoice  `json:"file,omitempty"`
}

type resolveStatus struct {
	InProgress bool        `json:"inProgress"`
	Task       interface{} `json:"task"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"enabled":   h.manager.Enabled(),
		"resolving": h.manager.Resolver.InProgress(),
	})
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results := magnet.NormalizeAll(req.Results)
	statuses := h.scanner.Check(r.Context(), results)
	writeJSON(w, http.StatusOK, availabilityResponse{Results: statuses, Cached: h.manager.Index.Len()})
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	hash := models.NormalizeHash(mux.Vars(r)["hash"])
	record, ok := h.manager.Index.Record(hash)
	if !ok {
		writeJSON(w, http.StatusNotFound, recordResponse{Hash: hash, Status: availability.StatusNone})
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Hash: hash, Status: availability.StatusOf(record), Record: &record})
}

func (h *Handler) SelectResult(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result := magnet.Normalize(req.Result)
	record, err := h.manager.Index.SelectResult(&result)
	if err != nil {
		writeDebridError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Hash: result.Hash(), Status: availability.StatusOf(record), Record: &record})
}

func (h *Handler) StartResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task := h.manager.Resolve(h.baseCtx, magnet.Normalize(req.Result), req.File)
	writeJSON(w, http.StatusAccepted, task)
}

func (h *Handler) ResolveStatus(w http.ResponseWriter, r *http.Request) {
	status := resolveStatus{InProgress: h.manager.Resolver.InProgress()}
	if task, ok := h.manager.Resolver.LastTask(); ok {
		status.Task = task
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CancelResolve(w http.ResponseWriter, r *http.Request) {
	h.manager.Resolver.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StartAuth(w http.ResponseWriter, r *http.Request) {
	id := h.manager.Auth.Start(h.baseCtx)
	writeJSON(w, http.StatusAccepted, map[string]string{"attemptId": id})
}

func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Auth.Session())
}

func (h *Handler) CancelAuth(w http.ResponseWriter, r *http.Request) {
	h.manager.Auth.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Auth.Logout(r.Context()); err != nil {
		writeDebridError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Auth.Session())
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items := []notify.Notification{}
	if h.feed != nil {
		items = h.feed.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "not_found", "live updates are disabled")
		return
	}
	h.hub.ServeWS(w, r)
}

// Shutdown stops background work owned by the handler.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.scanner.Stop()
	if h.hub != nil {
		h.hub.Close()
	}
	err := h.manager.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("background runs did not finish before shutdown deadline")
	}
	return err
}

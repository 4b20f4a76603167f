package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/safesync/api"
	"github.com/ruteri/safesync/dbfile"
	"github.com/ruteri/safesync/interfaces"
	"github.com/ruteri/safesync/metrics"
	"github.com/ruteri/safesync/model"
	"github.com/ruteri/safesync/safesync"
)

// maxBodySize is the maximum allowed request body size (64MB).
const maxBodySize = 64 << 20

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler processes HTTP requests for the safesync service.
type Handler struct {
	syncer    *safesync.Syncer
	scheduler *safesync.Scheduler
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - syncer: Syncer bound to the configured storage provider
//   - scheduler: Scheduler holding configured safes, may be nil
//   - m: Metrics recorder, may be nil
//   - log: Structured logger for operational insights
func NewHandler(syncer *safesync.Syncer, scheduler *safesync.Scheduler, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		syncer:    syncer,
		scheduler: scheduler,
		metrics:   m,
		log:       log,
	}
}

// RegisterRoutes mounts the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/pools", h.HandlePools)
	r.Get("/api/safes/{name}", h.HandlePull)
	r.Put("/api/safes/{name}", h.HandlePush)
	r.Post("/api/safes/{name}/run", h.HandleRunSafe)
	r.Get("/api/provider", h.HandleProviderStatus)
	r.Post("/api/provider/signout", h.HandleSignOut)
}

// HandlePools computes the minimal pools of a posted database document.
//
// URL format: POST /api/pools
//
// Request body: database document
//
// Response: api.PoolsResponse
func (h *Handler) HandlePools(w http.ResponseWriter, r *http.Request) {
	db, err := h.readDatabase(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.NewPoolsResponse(db)
	h.metrics.ObservePools(resp.Stats.Attachments, resp.Stats.Icons, resp.Stats.DroppedAttachments, resp.Stats.DroppedIcons)

	h.writeJSON(w, http.StatusOK, resp)
}

// HandlePull reads a database through the storage provider.
//
// URL format: GET /api/safes/{name}
//
// {name} is either a configured safe or a file reference on the provider.
//
// Response: database document, with the content ID in api.ContentIDHeader
// and api.FromCacheHeader set when the provider was offline.
func (h *Handler) HandlePull(w http.ResponseWriter, r *http.Request) {
	name, ref, err := h.resolveSafe(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	db, result, err := h.syncer.Pull(r.Context(), ref)
	if err != nil {
		h.log.Error("Pull failed", "err", err, "safe", name, "ref", ref)
		h.writeError(w, err)
		return
	}

	document, err := dbfile.Encode(db)
	if err != nil {
		h.log.Error("Failed to encode pulled database", "err", err, "safe", name)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(api.ContentIDHeader, result.ContentID.String())
	if result.FromCache {
		w.Header().Set(api.FromCacheHeader, "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(document)
}

// HandlePush writes a posted database document through the storage provider.
//
// URL format: PUT /api/safes/{name}
//
// Request body: database document
//
// Response: api.SyncResponse
func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	name, ref, err := h.resolveSafe(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	db, err := h.readDatabase(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.syncer.Push(r.Context(), ref, db)
	if err != nil {
		h.log.Error("Push failed", "err", err, "safe", name, "ref", ref)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pushResponse(name, ref, result))
}

// HandleRunSafe pushes a configured safe from its local file.
//
// URL format: POST /api/safes/{name}/run
//
// Response: api.SyncResponse
func (h *Handler) HandleRunSafe(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || h.scheduler == nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusNotFound, Err: safesync.ErrUnknownSafe})
		return
	}

	result, err := h.scheduler.RunNow(r.Context(), name)
	if err != nil {
		h.log.Error("Safe run failed", "err", err, "safe", name)
		h.writeError(w, err)
		return
	}

	safe, _ := h.scheduler.Safe(name)
	h.writeJSON(w, http.StatusOK, pushResponse(name, safe.Ref, result))
}

// HandleProviderStatus describes the storage provider.
//
// URL format: GET /api/provider
//
// Response: api.ProviderStatus
func (h *Handler) HandleProviderStatus(w http.ResponseWriter, r *http.Request) {
	p := h.syncer.Provider()
	h.writeJSON(w, http.StatusOK, api.ProviderStatus{
		Name:       p.Name(),
		Kind:       p.Kind().String(),
		Location:   p.LocationURI(),
		Available:  p.Available(r.Context()),
		SignedIn:   p.IsSignedIn(),
		Attributes: p.Attributes(),
	})
}

// HandleSignOut signs the storage provider out.
//
// URL format: POST /api/provider/signout
//
// A failed sign-out returns 502 with the provider's error.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.SignOut(r.Context()); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadGateway, Err: err})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// resolveSafe maps the {name} URL parameter to a file reference. Configured
// safes resolve to their reference, anything else is used as the reference.
func (h *Handler) resolveSafe(r *http.Request) (string, interfaces.FileReference, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		return "", "", &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid safe name")}
	}

	ref := interfaces.FileReference(name)
	if h.scheduler != nil {
		if safe, ok := h.scheduler.Safe(name); ok {
			ref = safe.Ref
		}
	}
	if err := ref.Validate(); err != nil {
		return "", "", err
	}
	return name, ref, nil
}

func (h *Handler) readDatabase(w http.ResponseWriter, r *http.Request) (*model.Database, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: err}
		}
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) == 0 {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("empty request body")}
	}
	return dbfile.Decode(body)
}

func pushResponse(name string, ref interfaces.FileReference, result safesync.PushResult) api.SyncResponse {
	stats := result.Stats
	return api.SyncResponse{
		Safe:      name,
		Ref:       ref.String(),
		ContentID: result.ContentID.String(),
		Skipped:   result.Skipped,
		Stats:     &stats,
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrInvalidReference),
		errors.Is(err, dbfile.ErrMalformedDocument),
		errors.Is(err, dbfile.ErrUnsupportedFormat),
		errors.Is(err, dbfile.ErrDecompressedTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrContentNotFound),
		errors.Is(err, safesync.ErrUnknownSafe):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		errID := uuid.NewString()
		h.log.Error("Internal error", "err", err, "errorID", errID)
		msg = "internal error " + errID
	}
	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

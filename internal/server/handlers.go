package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/job"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Planner previews the commands for an action list.
type Planner interface {
	DryRun(source string, actions []action.Action) ([]string, error)
}

// ErrOutsideMediaRoot is returned for request paths that escape the media root.
var ErrOutsideMediaRoot = errors.New("path is outside the media root")

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.Service
	planner   Planner
	mediaRoot string
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithPlanner enables POST /renders/plan.
func WithPlanner(p Planner) HandlerOption {
	return func(h *Handlers) {
		h.planner = p
	}
}

// WithMediaRoot confines request sources and destinations to root. Relative
// request paths are taken relative to root. Without it every path the
// caller names is trusted.
func WithMediaRoot(root string) HandlerOption {
	return func(h *Handlers) {
		if root == "" {
			return
		}
		h.mediaRoot = resolvePath(root)
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateRender handles POST /renders requests.
func (h *Handlers) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req CreateRenderRequest
	if !h.decode(w, r, &req) {
		return
	}

	actions, err := (&action.Document{Actions: req.Actions}).Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_ACTIONS")
		return
	}

	source, err := h.confine(req.Source)
	if err != nil {
		h.writeConfineError(w, r, err)
		return
	}
	destination, err := h.confine(req.Destination)
	if err != nil {
		h.writeConfineError(w, r, err)
		return
	}

	created, err := h.service.Submit(r.Context(), job.Request{
		Source:      source,
		Destination: destination,
		Actions:     actions,
		S3Key:       req.S3Key,
	})
	if err != nil {
		switch {
		case errors.Is(err, job.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
		case errs.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		default:
			h.logger.Error("failed to submit render",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit render", "RENDER_SUBMIT_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, CreateRenderResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// PlanRender handles POST /renders/plan requests.
func (h *Handlers) PlanRender(w http.ResponseWriter, r *http.Request) {
	if h.planner == nil {
		writeError(w, http.StatusNotImplemented, "planning is not enabled", "PLAN_DISABLED")
		return
	}

	var req PlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	actions, err := (&action.Document{Actions: req.Actions}).Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_ACTIONS")
		return
	}

	source, err := h.confine(req.Source)
	if err != nil {
		h.writeConfineError(w, r, err)
		return
	}

	cmds, err := h.planner.DryRun(source, actions)
	if err != nil {
		if errs.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_ACTIONS")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "PLAN_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, PlanResponse{Commands: cmds})
}

// ListRenders handles GET /renders requests, optionally filtered by ?status=.
func (h *Handlers) ListRenders(w http.ResponseWriter, r *http.Request) {
	var filter job.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := job.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_STATUS")
			return
		}
		filter.Status = status
	}

	jobs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list renders", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list renders", "RENDER_LIST_FAILED")
		return
	}

	resp := ListRendersResponse{Renders: make([]RenderResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Renders = append(resp.Renders, toRenderResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRender handles GET /renders/{id} requests.
func (h *Handlers) GetRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "render ID is required", "MISSING_RENDER_ID")
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toRenderResponse(found))
}

// CancelRender handles DELETE /renders/{id} requests.
func (h *Handlers) CancelRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "render ID is required", "MISSING_RENDER_ID")
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobFinished) {
			writeError(w, http.StatusConflict, "render already finished", "RENDER_FINISHED")
			return
		}
		h.writeLookupError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toRenderResponse(cancelled))
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "render not found", "RENDER_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get render",
		slog.String("render_id", id),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get render", "RENDER_FETCH_FAILED")
}

// confine maps a request path into the media root, rejecting anything that
// resolves outside it once symlinks are followed. Empty paths and paths
// without a configured root pass through unchanged.
func (h *Handlers) confine(path string) (string, error) {
	if h.mediaRoot == "" || path == "" {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.mediaRoot, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(h.mediaRoot, resolvePath(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideMediaRoot, path)
	}
	return path, nil
}

func (h *Handlers) writeConfineError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("rejected path outside media root",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusBadRequest, err.Error(), "PATH_OUTSIDE_MEDIA_ROOT")
}

// resolvePath makes path absolute and follows symlinks on the longest prefix
// that exists, so a destination that is yet to be written still resolves
// through a linked parent directory.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	var tail []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...)
		} else if !errors.Is(err, os.ErrNotExist) {
			return abs
		}
		if parent := filepath.Dir(dir); parent == dir {
			return abs
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
	}
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func toRenderResponse(j *job.Job) RenderResponse {
	resp := RenderResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Source:      j.Source,
		Destination: j.Destination,
		Error:       j.Error,
		OutputURL:   j.OutputURL,
		CreatedAt:   j.CreatedAt,
		StartedAt:   timePtr(j.StartedAt),
		CompletedAt: timePtr(j.CompletedAt),
	}
	if j.Metadata != nil {
		resp.Metadata = &MetadataResponse{
			Width:  j.Metadata.Width,
			Height: j.Metadata.Height,
			FPS:    j.Metadata.FPS,
		}
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

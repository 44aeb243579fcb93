// Package handler is the administrative surface of the mint retry queue.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"certify/internal/mint/models"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	adminmw "certify/pkg/platform/middleware/admin"
	request "certify/pkg/platform/middleware/request"
	"certify/pkg/platform/sentinel"
	"certify/pkg/platform/validation"
)

const (
	defaultStreamInterval = 5 * time.Second
	writeWait             = 10 * time.Second
)

// Queue is the subset of the retry queue the admin surface uses.
type Queue interface {
	Stats(ctx context.Context) (models.Stats, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Job, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	RetryFailed(ctx context.Context, ids []uuid.UUID) (int, error)
	Purge(ctx context.Context, ids []uuid.UUID) (int, error)
}

type Option func(*Handler)

// WithStreamInterval sets how often the websocket stream pushes stats.
func WithStreamInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.streamInterval = d
		}
	}
}

type Handler struct {
	queue          Queue
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	streamInterval time.Duration
}

func New(queue Queue, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		queue:          queue,
		logger:         logger,
		streamInterval: defaultStreamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAdmin mounts the queue routes. Callers wrap r with the admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/queue/stats", h.HandleStats)
	r.Get("/admin/queue/jobs", h.HandleList)
	r.Get("/admin/queue/jobs/{jobId}", h.HandleGet)
	r.Post("/admin/queue/retry", h.HandleRetry)
	r.Post("/admin/queue/purge", h.HandlePurge)
}

// RegisterStream mounts the websocket stats stream. It must not sit behind
// middleware that buffers or times out the response.
func (h *Handler) RegisterStream(r chi.Router) {
	r.Get("/admin/queue/stream", h.HandleStream)
}

type StatsResponse struct {
	models.Stats
	Total int64 `json:"total"`
}

type ListResponse struct {
	Status models.Status `json:"status"`
	Jobs   []*models.Job `json:"jobs"`
	Count  int           `json:"count"`
}

type BatchResponse struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "queue stats failed", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleList lists jobs by status: GET /admin/queue/jobs?status=failed&limit=50.
// Status defaults to pending.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	status := models.StatusPending
	if raw := query.Get("status"); raw != "" {
		parsed, ok := models.ParseStatus(raw)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "status must be one of [pending processing completed failed]"))
			return
		}
		status = parsed
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	jobs, err := h.queue.ListByStatus(ctx, status, validation.ClampLimit(limit))
	if err != nil {
		h.logger.ErrorContext(ctx, "list jobs failed", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list jobs"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ListResponse{Status: status, Jobs: jobs, Count: len(jobs)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid job id"))
		return
	}
	job, err := h.queue.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "job not found"))
			return
		}
		h.logger.ErrorContext(ctx, "get job failed", "error", err, "job_id", id, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load job"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

// HandleRetry resets failed jobs to pending. Jobs in other states are skipped.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "retry", h.queue.RetryFailed)
}

// HandlePurge deletes completed or failed jobs. Jobs in other states are skipped.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "purge", h.queue.Purge)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, []uuid.UUID) (int, error)) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[JobIDsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ids := req.IDs()
	n, err := fn(ctx, ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "queue "+op+" failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op+" jobs"))
		return
	}
	h.logger.InfoContext(ctx, "queue "+op,
		"requested", len(ids),
		"affected", n,
		"admin_actor", adminmw.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, &BatchResponse{Requested: len(ids), Affected: n})
}

// HandleStream upgrades to a websocket and pushes queue stats every stream
// interval until the client disconnects.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect disconnects; clients send nothing meaningful.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()
	for {
		if err := h.push(ctx, conn); err != nil {
			h.logger.DebugContext(ctx, "queue stream closed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) push(ctx context.Context, conn *websocket.Conn) error {
	stats, err := h.stats(ctx)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(stats)
}

func (h *Handler) stats(ctx context.Context) (*StatsResponse, error) {
	stats, err := h.queue.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load queue stats")
	}
	return &StatsResponse{Stats: stats, Total: stats.Total()}, nil
}

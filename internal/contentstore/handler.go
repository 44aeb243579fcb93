package contentstore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/platform/sentinel"
)

var validAddress = regexp.MustCompile(`^[a-zA-Z0-9]{16,128}$`)

// Getter reads stored content.
type Getter interface {
	Get(ctx context.Context, address string) ([]byte, error)
}

// Handler serves stored documents for backends without their own gateway.
type Handler struct {
	store  Getter
	logger *slog.Logger
}

func NewHandler(store Getter, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts GET /content/{address}.
func (h *Handler) Register(r chi.Router) {
	r.Get("/content/{address}", h.HandleGet)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validAddress.MatchString(address) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed content address"))
		return
	}

	data, err := h.store.Get(r.Context(), address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "content not found"))
			return
		}
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "failed to load content", "address", address, "error", err)
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load content"))
		return
	}

	// Content is addressed by digest, so it never changes under one address.
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+address+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

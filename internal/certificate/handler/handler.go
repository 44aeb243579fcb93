// Package handler exposes certificate verification publicly and the
// issuance lifecycle to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certify/internal/certificate/models"
	"certify/internal/certificate/service"
	"certify/internal/certificate/verify"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	adminmw "certify/pkg/platform/middleware/admin"
	request "certify/pkg/platform/middleware/request"
)

// Verifier checks a presented certificate.
type Verifier interface {
	Verify(ctx context.Context, in verify.Input) (*models.VerificationResult, error)
}

// Lifecycle issues, revokes and reports on certificates.
type Lifecycle interface {
	Issue(ctx context.Context, req service.IssueRequest) (*service.IssueResult, error)
	Get(ctx context.Context, certificateID string) (*models.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Certificate, error)
	Revoke(ctx context.Context, certificateID string) (*models.Certificate, error)
	Status(ctx context.Context, certificateID string) (*service.Status, error)
	Stats(ctx context.Context) (models.Stats, error)
}

type Handler struct {
	verifier  Verifier
	lifecycle Lifecycle
	logger    *slog.Logger
}

func New(verifier Verifier, lifecycle Lifecycle, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, lifecycle: lifecycle, logger: logger}
}

// Register mounts the public verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verify/{certificateId}", h.HandleVerifyByID)
	r.Post("/verify", h.HandleVerify)
}

// RegisterAdmin mounts the administrative routes. Callers wrap r with the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/certificates/issue", h.HandleIssue)
	r.Get("/admin/certificates/stats", h.HandleStats)
	r.Get("/admin/certificates", h.HandleListByUser)
	r.Get("/admin/certificates/{certificateId}", h.HandleGet)
	r.Post("/admin/certificates/{certificateId}/revoke", h.HandleRevoke)
	r.Get("/admin/certificates/{certificateId}/status", h.HandleStatus)
}

// HandleVerifyByID verifies the certificate named in the path.
func (h *Handler) HandleVerifyByID(w http.ResponseWriter, r *http.Request) {
	req := &VerifyRequest{CertificateID: chi.URLParam(r, "certificateId")}
	if err := httputil.PrepareRequest(req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.verify(w, r, req)
}

// HandleVerify verifies by certificate ID, scanned QR payload or verification code.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	h.verify(w, r, req)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, req *VerifyRequest) {
	ctx := r.Context()
	result, err := h.verifier.Verify(ctx, req.toInput(r.UserAgent(), r.RemoteAddr))
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) && !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "verify certificate failed",
				"error", err,
				"request_id", request.GetRequestID(ctx),
				"certificate_id", req.CertificateID,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleIssue issues a certificate; repeated calls return the existing one with 200.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.lifecycle.Issue(ctx, req.toCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "issue certificate failed",
			"error", err,
			"request_id", requestID,
			"user_id", req.UserID,
			"course_id", req.CourseID,
			"admin_actor", adminmw.GetAdminActorID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toIssueResponse(res))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cert, err := h.lifecycle.Get(ctx, chi.URLParam(r, "certificateId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// HandleListByUser lists a user's certificates: GET /admin/certificates?user_id=...
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certs, err := h.lifecycle.ListByUser(ctx, r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(certs))
}

// HandleRevoke invalidates a certificate. The ledger anchor is left as is.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "certificateId")
	cert, err := h.lifecycle.Revoke(ctx, certificateID)
	if err != nil {
		h.logger.WarnContext(ctx, "revoke certificate failed",
			"error", err,
			"request_id", request.GetRequestID(ctx),
			"certificate_id", certificateID,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "certificate revoked by admin",
		"certificate_id", cert.CertificateID,
		"admin_actor", adminmw.GetAdminActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.lifecycle.Status(ctx, chi.URLParam(r, "certificateId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.lifecycle.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "certificate stats failed", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

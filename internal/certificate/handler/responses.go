package handler

import (
	"time"

	"github.com/google/uuid"

	"certify/internal/certificate/models"
	"certify/internal/certificate/service"
	mintmodels "certify/internal/mint/models"
	"certify/internal/mint/orchestrator"
)

type CertificateResponse struct {
	CertificateID       string                   `json:"certificate_id"`
	CertificateNumber   string                   `json:"certificate_number"`
	VerificationCode    string                   `json:"verification_code"`
	UserID              string                   `json:"user_id"`
	CourseID            string                   `json:"course_id"`
	StudentName         string                   `json:"student_name"`
	CourseName          string                   `json:"course_name"`
	InstructorName      string                   `json:"instructor_name,omitempty"`
	CompletionDate      time.Time                `json:"completion_date"`
	Grade               string                   `json:"grade"`
	Score               int                      `json:"score"`
	Achievements        []string                 `json:"achievements"`
	CompletionTimeHours float64                  `json:"completion_time_hours,omitempty"`
	QRPayload           string                   `json:"qr_payload"`
	DocumentURL         string                   `json:"document_url,omitempty"`
	MetadataContentHash string                   `json:"metadata_content_hash"`
	IntegrityHash       string                   `json:"integrity_hash"`
	BlockchainRecord    *models.BlockchainRecord `json:"blockchain_record,omitempty"`
	QueueJobID          string                   `json:"queue_job_id,omitempty"`
	IsValid             bool                     `json:"is_valid"`
	RevokedAt           *time.Time               `json:"revoked_at,omitempty"`
	ScanCount           int64                    `json:"scan_count"`
	LastScannedAt       *time.Time               `json:"last_scanned_at,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
}

type AnchorResponse struct {
	Mode          orchestrator.Mode `json:"mode"`
	Reason        string            `json:"reason,omitempty"`
	JobID         *uuid.UUID        `json:"job_id,omitempty"`
	Priority      int               `json:"priority,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type IssueResponse struct {
	Created     bool                `json:"created"`
	Certificate CertificateResponse `json:"certificate"`
	Anchor      *AnchorResponse     `json:"anchor,omitempty"`
}

type StatusResponse struct {
	CertificateID    string                   `json:"certificate_id"`
	IsValid          bool                     `json:"is_valid"`
	AnchorState      service.AnchorState      `json:"anchor_state"`
	BlockchainRecord *models.BlockchainRecord `json:"blockchain_record,omitempty"`
	Job              *mintmodels.Job          `json:"job,omitempty"`
}

type ListResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
	Total        int                   `json:"total"`
}

func toCertificateResponse(c *models.Certificate) CertificateResponse {
	achievements := c.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return CertificateResponse{
		CertificateID:       c.CertificateID,
		CertificateNumber:   c.CertificateNumber,
		VerificationCode:    c.VerificationCode,
		UserID:              c.UserID,
		CourseID:            c.CourseID,
		StudentName:         c.StudentName,
		CourseName:          c.CourseName,
		InstructorName:      c.InstructorName,
		CompletionDate:      c.CompletionDate,
		Grade:               c.Grade,
		Score:               c.Score,
		Achievements:        achievements,
		CompletionTimeHours: c.CompletionTimeHours,
		QRPayload:           c.QRPayload,
		DocumentURL:         c.DocumentURL,
		MetadataContentHash: c.MetadataContentHash,
		IntegrityHash:       c.IntegrityHash,
		BlockchainRecord:    c.BlockchainRecord,
		QueueJobID:          c.QueueJobID,
		IsValid:             c.IsValid,
		RevokedAt:           c.RevokedAt,
		ScanCount:           c.ScanCount,
		LastScannedAt:       c.LastScannedAt,
		CreatedAt:           c.CreatedAt,
	}
}

func toAnchorResponse(r *orchestrator.Result) *AnchorResponse {
	if r == nil {
		return nil
	}
	resp := &AnchorResponse{Mode: r.Mode, Reason: r.Reason, Priority: r.Priority}
	if r.Queued() {
		id := r.JobID
		resp.JobID = &id
	}
	if r.Record != nil {
		resp.TransactionID = r.Record.TransactionID
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

func toIssueResponse(r *service.IssueResult) *IssueResponse {
	return &IssueResponse{
		Created:     r.Created,
		Certificate: toCertificateResponse(r.Certificate),
		Anchor:      toAnchorResponse(r.Anchor),
	}
}

func toStatusResponse(s *service.Status) *StatusResponse {
	return &StatusResponse{
		CertificateID:    s.Certificate.CertificateID,
		IsValid:          s.Certificate.IsValid,
		AnchorState:      s.State,
		BlockchainRecord: s.Certificate.BlockchainRecord,
		Job:              s.Job,
	}
}

func toListResponse(certs []*models.Certificate) *ListResponse {
	out := make([]CertificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, toCertificateResponse(c))
	}
	return &ListResponse{Certificates: out, Total: len(out)}
}

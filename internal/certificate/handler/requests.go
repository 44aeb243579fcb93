package handler

import (
	"strings"

	"certify/internal/certificate/service"
	"certify/internal/certificate/verify"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/validation"
	validate "certify/pkg/validation"
)

// VerifyRequest carries exactly one way of identifying a certificate.
type VerifyRequest struct {
	CertificateID    string `json:"certificate_id"`
	QRPayload        string `json:"qr_payload"`
	VerificationCode string `json:"verification_code"`
}

func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.CertificateID = strings.ToUpper(strings.TrimSpace(r.CertificateID))
	r.QRPayload = strings.TrimSpace(r.QRPayload)
	r.VerificationCode = strings.ToUpper(strings.TrimSpace(r.VerificationCode))
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.CertificateID == "" && r.QRPayload == "" && r.VerificationCode == "" {
		return dErrors.New(dErrors.CodeBadRequest, "one of certificate_id, qr_payload or verification_code is required")
	}
	if err := validation.CheckStringLength("certificate_id", r.CertificateID, validation.MaxIdentifierLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("verification_code", r.VerificationCode, validation.MaxIdentifierLength); err != nil {
		return err
	}
	return validation.CheckStringLength("qr_payload", r.QRPayload, validation.MaxQRPayloadLength)
}

func (r *VerifyRequest) toInput(userAgent, clientIP string) verify.Input {
	return verify.Input{
		CertificateID:    r.CertificateID,
		QRPayload:        r.QRPayload,
		VerificationCode: r.VerificationCode,
		UserAgent:        userAgent,
		ClientIP:         clientIP,
	}
}

// IssueRequest is the admin issuance trigger.
type IssueRequest struct {
	UserID   string `json:"user_id" validate:"notblank,max=128"`
	CourseID string `json:"course_id" validate:"notblank,max=128"`
	Trigger  string `json:"trigger" validate:"required,oneof=assessment_passed course_completed"`
	Score    *int   `json:"score" validate:"omitempty,gte=0,lte=100"`
}

func (r *IssueRequest) Normalize() {
	if r == nil {
		return
	}
	r.UserID = strings.TrimSpace(r.UserID)
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.Trigger = strings.ToLower(strings.TrimSpace(r.Trigger))
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validate.Validate(r)
}

func (r *IssueRequest) toCommand() service.IssueRequest {
	return service.IssueRequest{
		UserID:   r.UserID,
		CourseID: r.CourseID,
		Trigger:  service.Trigger(r.Trigger),
		Score:    r.Score,
	}
}

package service

import (
	"strings"

	"certify/internal/certificate/models"
	"certify/internal/mint/orchestrator"
	dErrors "certify/pkg/domain-errors"
)

// Trigger is the learning event that requested a certificate.
type Trigger string

const (
	TriggerAssessmentPassed Trigger = "assessment_passed"
	TriggerCourseCompleted  Trigger = "course_completed"
)

// IssueRequest asks for a certificate. Score overrides the recorded
// assessment score when set.
type IssueRequest struct {
	UserID   string
	CourseID string
	Trigger  Trigger
	Score    *int
}

func (r *IssueRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.CourseID = strings.TrimSpace(r.CourseID)
	switch {
	case r.UserID == "":
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	case r.CourseID == "":
		return dErrors.New(dErrors.CodeValidation, "course_id is required")
	case r.Trigger != TriggerAssessmentPassed && r.Trigger != TriggerCourseCompleted:
		return dErrors.New(dErrors.CodeValidation, "trigger must be assessment_passed or course_completed")
	case r.Score != nil && (*r.Score < 0 || *r.Score > 100):
		return dErrors.New(dErrors.CodeValidation, "score must be between 0 and 100")
	}
	return nil
}

// IssueResult is the issued (or previously issued) certificate. Anchor is
// nil when the certificate already existed or anchoring could not be queued.
type IssueResult struct {
	Certificate *models.Certificate
	Created     bool
	Anchor      *orchestrator.Result
}

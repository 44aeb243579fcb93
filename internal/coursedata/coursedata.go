// Package coursedata reads enrollment, assessment and course facts owned by
// the learning platform. The data is treated as validated external truth;
// nothing here writes to it.
package coursedata

import (
	"context"
	"time"
)

// Completion is everything certificate issuance needs to know about one
// student's progress in one course.
type Completion struct {
	UserID           string
	CourseID         string
	StudentName      string
	StudentEmail     string
	RecipientAddress string
	CourseName       string
	InstructorName   string
	EnrolledAt       time.Time
	CompletedAt      *time.Time
	// BestScore is the highest assessment score, nil when no assessment was taken.
	BestScore *int
}

// Completed reports whether the enrollment carries a completion timestamp.
func (c *Completion) Completed() bool {
	return c.CompletedAt != nil && !c.CompletedAt.IsZero()
}

// CompletionHours is the time between enrollment and completion, or 0 when
// either is unknown.
func (c *Completion) CompletionHours() float64 {
	if !c.Completed() || c.EnrolledAt.IsZero() || c.CompletedAt.Before(c.EnrolledAt) {
		return 0
	}
	return c.CompletedAt.Sub(c.EnrolledAt).Hours()
}

// Provider looks up completions. Returns sentinel.ErrNotFound when the
// student is not enrolled in the course.
type Provider interface {
	Completion(ctx context.Context, userID, courseID string) (*Completion, error)
}

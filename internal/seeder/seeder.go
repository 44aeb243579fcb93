// Package seeder fills in-memory course data with demo enrollments so a
// development server can issue certificates without a course database.
package seeder

import (
	"fmt"
	"log/slog"
	"time"

	"certify/internal/coursedata"
)

// CompletionStore accepts demo completions.
type CompletionStore interface {
	Put(c coursedata.Completion)
}

// Seeder populates in-memory stores with demo data
type Seeder struct {
	completions CompletionStore
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a new seeder
func New(completions CompletionStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		completions: completions,
		logger:      logger,
		now:         time.Now,
	}
}

type demoCourse struct {
	id         string
	name       string
	instructor string
}

var demoCourses = []demoCourse{
	{"course-go-101", "Practical Go", "Rob Pike"},
	{"course-dist-201", "Distributed Systems", "Leslie Lamport"},
	{"course-sec-301", "Applied Cryptography", "Whitfield Diffie"},
}

type demoStudent struct {
	userID string
	name   string
	email  string
	wallet string
}

var demoStudents = []demoStudent{
	{"user-alice", "Alice Anderson", "alice@example.com", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
	{"user-bob", "Bob Brown", "bob@example.com", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"},
	{"user-charlie", "Charlie Chen", "charlie@example.com", ""},
	{"user-diana", "Diana Davis", "diana@example.com", "0x90F79bf6EB2c4f870365E785982E1f101E93b906"},
	{"user-eve", "Eve Evans", "eve@example.com", ""},
}

// SeedAll writes one completion per scripted enrollment and returns how many were written.
func (s *Seeder) SeedAll() int {
	now := s.now().UTC()

	enrollments := []struct {
		studentIdx int
		courseIdx  int
		score      *int
		enrolled   time.Duration
		// completed is the offset after enrollment; zero leaves the course in progress.
		completed time.Duration
	}{
		{0, 0, score(100), -20 * 24 * time.Hour, 12 * time.Hour},
		{0, 1, score(91), -40 * 24 * time.Hour, 21 * 24 * time.Hour},
		{1, 0, score(84), -10 * 24 * time.Hour, 3 * 24 * time.Hour},
		{1, 2, score(62), -5 * 24 * time.Hour, 0},
		{2, 1, nil, -30 * 24 * time.Hour, 14 * 24 * time.Hour},
		{3, 2, score(96), -60 * 24 * time.Hour, 30 * 24 * time.Hour},
		{4, 0, nil, -2 * 24 * time.Hour, 0},
	}

	for _, e := range enrollments {
		student := demoStudents[e.studentIdx]
		course := demoCourses[e.courseIdx]
		enrolledAt := now.Add(e.enrolled)

		c := coursedata.Completion{
			UserID:           student.userID,
			CourseID:         course.id,
			StudentName:      student.name,
			StudentEmail:     student.email,
			RecipientAddress: student.wallet,
			CourseName:       course.name,
			InstructorName:   course.instructor,
			EnrolledAt:       enrolledAt,
			BestScore:        e.score,
		}
		if e.completed > 0 {
			at := enrolledAt.Add(e.completed)
			c.CompletedAt = &at
		}
		s.completions.Put(c)
	}

	if s.logger != nil {
		s.logger.Info("demo course data seeded",
			"enrollments", len(enrollments),
			"students", len(demoStudents),
			"courses", len(demoCourses),
		)
	}
	return len(enrollments)
}

// Describe lists the seeded user/course pairs for the startup log.
func Describe() []string {
	out := make([]string, 0, len(demoStudents))
	for _, st := range demoStudents {
		out = append(out, fmt.Sprintf("%s <%s>", st.userID, st.email))
	}
	return out
}

func score(v int) *int { return &v }

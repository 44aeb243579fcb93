package coursedata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"certify/pkg/platform/sentinel"
)

// Course is a row of the platform's courses table.
type Course struct {
	ID             string `gorm:"primaryKey"`
	Title          string `gorm:"not null"`
	InstructorName string
}

func (Course) TableName() string { return "courses" }

// Student is a row of the platform's students table.
type Student struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Email         string
	WalletAddress string
}

func (Student) TableName() string { return "students" }

// Enrollment links a student to a course.
type Enrollment struct {
	UserID      string    `gorm:"primaryKey"`
	CourseID    string    `gorm:"primaryKey"`
	EnrolledAt  time.Time `gorm:"not null"`
	CompletedAt *time.Time
}

func (Enrollment) TableName() string { return "enrollments" }

// AssessmentResult is one graded attempt at a course's final assessment.
type AssessmentResult struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   string `gorm:"index:idx_assessment_user_course;not null"`
	CourseID string `gorm:"index:idx_assessment_user_course;not null"`
	Score    int    `gorm:"not null"`
	TakenAt  time.Time
}

func (AssessmentResult) TableName() string { return "assessment_results" }

// GormProvider reads completions from the learning platform's Postgres database.
type GormProvider struct {
	db *gorm.DB
}

// OpenGorm connects to the course database at dsn.
func OpenGorm(dsn string) (*GormProvider, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open course database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("course database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	return &GormProvider{db: db}, nil
}

// NewGormProvider wraps an existing connection pool.
func NewGormProvider(conn *sql.DB) (*GormProvider, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open course database: %w", err)
	}
	return &GormProvider{db: db}, nil
}

// DB exposes the gorm handle for seeding and health checks.
func (p *GormProvider) DB() *gorm.DB {
	return p.db
}

// Ping checks the course database connection.
func (p *GormProvider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type completionRow struct {
	UserID           string
	CourseID         string
	StudentName      string
	StudentEmail     string
	RecipientAddress string
	CourseName       string
	InstructorName   string
	EnrolledAt       time.Time
	CompletedAt      *time.Time
	BestScore        *int
}

func (p *GormProvider) Completion(ctx context.Context, userID, courseID string) (*Completion, error) {
	var row completionRow
	err := p.db.WithContext(ctx).
		Table("enrollments AS e").
		Select(`e.user_id, e.course_id, e.enrolled_at, e.completed_at,
			s.name AS student_name, s.email AS student_email, s.wallet_address AS recipient_address,
			c.title AS course_name, c.instructor_name,
			(SELECT MAX(a.score) FROM assessment_results a
				WHERE a.user_id = e.user_id AND a.course_id = e.course_id) AS best_score`).
		Joins("JOIN students s ON s.id = e.user_id").
		Joins("JOIN courses c ON c.id = e.course_id").
		Where("e.user_id = ? AND e.course_id = ?", userID, courseID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load completion: %w", err)
	}
	c := Completion(row)
	return &c, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

type studentByID interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// GradeService manages exam results and their performance bands.
type GradeService struct {
	repo      gradeRepository
	students  studentByID
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs the grade book.
func NewGradeService(repo gradeRepository, students studentByID, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, students: students, validator: validate, logger: logger, now: time.Now}
}

// List returns grades and pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error) {
	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list grades")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return grades, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create records an exam result.
func (s *GradeService) Create(ctx context.Context, req models.GradeRequest) (*models.Grade, error) {
	grade := &models.Grade{}
	if err := s.apply(ctx, grade, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Persistence(err, "failed to create grade")
	}
	return grade, nil
}

// Update rewrites an exam result and recomputes its band.
func (s *GradeService) Update(ctx context.Context, id string, req models.GradeRequest) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Persistence(err, "failed to load grade")
	}
	if err := s.apply(ctx, grade, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, grade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Persistence(err, "failed to update grade")
	}
	return grade, nil
}

// Delete removes an exam result.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Persistence(err, "failed to delete grade")
	}
	return nil
}

func (s *GradeService) apply(ctx context.Context, grade *models.Grade, req models.GradeRequest) error {
	req.ExamName = strings.TrimSpace(req.ExamName)
	req.GroupName = strings.TrimSpace(req.GroupName)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid grade payload")
	}
	if req.Score > req.TotalScore {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score %.2f exceeds total %.2f", req.Score, req.TotalScore))
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return appErrors.Persistence(err, "failed to load student")
	}

	grade.StudentID = student.ID
	grade.StudentName = student.FullName
	grade.ExamName = req.ExamName
	grade.Score = req.Score
	grade.TotalScore = req.TotalScore
	grade.LessonNumber = req.LessonNumber
	grade.GroupName = req.GroupName
	if grade.GroupName == "" {
		grade.GroupName = student.GroupName
	}
	switch {
	case req.Date != nil:
		grade.Date = req.Date.UTC()
	case grade.Date.IsZero():
		grade.Date = s.now().UTC().Truncate(24 * time.Hour)
	}
	grade.Performance = models.PerformanceFor(grade.Score, grade.TotalScore)
	return nil
}

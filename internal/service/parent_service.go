package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/repository"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

const overviewRecentLimit = 10

type parentRepository interface {
	List(ctx context.Context, studentID string) ([]models.Parent, error)
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	CreateWithAccount(ctx context.Context, parent *models.Parent, account *models.User) error
	Delete(ctx context.Context, id string) error
}

type attendanceHistory interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error)
}

type gradeLister interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
}

type coverageReader interface {
	Coverage(ctx context.Context, studentID string) (*models.PaymentCoverage, error)
}

// ParentService manages guardian accounts and their read-only view of a child.
type ParentService struct {
	repo       parentRepository
	students   studentByID
	attendance attendanceHistory
	grades     gradeLister
	coverage   coverageReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewParentService constructs the parent directory.
func NewParentService(repo parentRepository, students studentByID, attendance attendanceHistory, grades gradeLister, coverage coverageReader, validate *validator.Validate, logger *zap.Logger) *ParentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParentService{
		repo:       repo,
		students:   students,
		attendance: attendance,
		grades:     grades,
		coverage:   coverage,
		validator:  validate,
		logger:     logger,
	}
}

// List returns parents, optionally for a single student.
func (s *ParentService) List(ctx context.Context, studentID string) ([]models.Parent, error) {
	parents, err := s.repo.List(ctx, studentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list parents")
	}
	return parents, nil
}

// Create registers a parent linked to a student with a PARENT login whose username
// is the phone number.
func (s *ParentService) Create(ctx context.Context, req models.CreateParentRequest) (*models.Parent, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid parent payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	parent := &models.Parent{FullName: req.FullName, Phone: req.Phone, StudentID: req.StudentID}
	account := &models.User{
		Username:     req.Phone,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleParent,
		StudentID:    &parent.StudentID,
		Active:       true,
	}
	if err := s.repo.CreateWithAccount(ctx, parent, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "phone number already registered")
		}
		return nil, appErrors.Persistence(err, "failed to create parent")
	}
	return parent, nil
}

// Delete removes a parent and their login.
func (s *ParentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return appErrors.Persistence(err, "failed to delete parent")
	}
	return nil
}

// Overview gathers the child's profile, recent attendance, recent grades and payment
// coverage for the parent.
func (s *ParentService) Overview(ctx context.Context, parentID string) (*models.ParentOverview, error) {
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Persistence(err, "failed to load parent")
	}
	student, err := s.students.FindByID(ctx, parent.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}
	attendance, err := s.attendance.ListByStudent(ctx, student.ID, overviewRecentLimit)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load attendance")
	}
	grades, _, err := s.grades.List(ctx, models.GradeFilter{StudentID: student.ID, PageSize: overviewRecentLimit})
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load grades")
	}
	coverage, err := s.coverage.Coverage(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	return &models.ParentOverview{
		Parent:     *parent,
		Student:    *student,
		Attendance: attendance,
		Grades:     grades,
		Coverage:   *coverage,
	}, nil
}

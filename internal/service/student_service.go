package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/repository"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

const (
	studentCodeAttempts = 5
	studentQRSize       = 256
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	CreateWithAccount(ctx context.Context, student *models.Student, account *models.User) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	audit     auditRecorder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	newCode   func() (string, error)
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, audit auditRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger, newCode: randomStudentCode}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.GradeLevel != "" && !filter.GradeLevel.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown grade level %q", filter.GradeLevel))
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list students")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}
	return student, nil
}

// Create registers a student together with a STUDENT login account whose username is
// the issued code. Code collisions are retried with a fresh code.
func (s *StudentService) Create(ctx context.Context, actorID string, req models.CreateStudentRequest) (*models.Student, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.GroupName = strings.TrimSpace(req.GroupName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid student payload")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	for attempt := 1; attempt <= studentCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue student code")
		}
		student := &models.Student{
			FullName:    req.FullName,
			Code:        code,
			GradeLevel:  req.GradeLevel,
			GroupName:   req.GroupName,
			ParentPhone: req.ParentPhone,
		}
		account := &models.User{
			Username:     code,
			PasswordHash: string(hash),
			FullName:     req.FullName,
			Role:         models.RoleStudent,
			Active:       true,
		}
		err = s.repo.CreateWithAccount(ctx, student, account)
		if errors.Is(err, repository.ErrDuplicateKey) {
			s.logger.Debug("student code collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to create student")
		}
		s.recordAudit(ctx, actorID, models.AuditActionStudentCreate, student.ID)
		s.cache.Forget(ctx, cacheKeyDashboard)
		return student, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "could not issue a unique student code, try again")
}

// Update edits the mutable fields of a student; the code is preserved.
func (s *StudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.GroupName = strings.TrimSpace(req.GroupName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student.FullName = req.FullName
	student.GradeLevel = req.GradeLevel
	student.GroupName = req.GroupName
	student.ParentPhone = req.ParentPhone
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to update student")
	}
	s.cache.Forget(ctx, cacheKeyDashboard)
	return student, nil
}

// Delete removes a student. Attendance, grades, payments, parents and the login
// account go with it.
func (s *StudentService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return appErrors.Persistence(err, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", id), zap.String("actor_id", actorID))
	s.recordAudit(ctx, actorID, models.AuditActionStudentDelete, id)
	s.cache.Forget(ctx, cacheKeyDashboard)
	return nil
}

// QRCode renders the student's code as a PNG QR card.
func (s *StudentService) QRCode(ctx context.Context, id string) ([]byte, *models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	png, err := qrcode.Encode(student.Code, qrcode.Medium, studentQRSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, student, nil
}

func (s *StudentService) recordAudit(ctx context.Context, actorID, action, studentID string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: "student", ResourceID: &studentID}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record student audit log", zap.String("action", action), zap.Error(err))
	}
}

func randomStudentCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", models.StudentCodeLength, n.Int64()), nil
}

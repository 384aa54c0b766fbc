package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/lessoncycle"
	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/scanner"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

const studentHistoryLimit = 50

type attendanceRepository interface {
	CreateSequenced(ctx context.Context, rec *models.AttendanceRecord, assign func(prior, paidMonths int) error) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error)
	Delete(ctx context.Context, id string) error
}

type studentCodeLookup interface {
	FindByCode(ctx context.Context, code string) (*models.Student, error)
}

type codeScanner interface {
	Scan(ctx context.Context, deviceID string, camera scanner.Camera) (string, error)
}

// AttendanceService records attendance for a presented student code and reports
// whether the lesson is covered by a paid month.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentCodeLookup
	audit     auditRecorder
	scanners  codeScanner
	metrics   *MetricsService
	validator *validator.Validate
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewAttendanceService constructs the attendance recorder. loc is the center timezone
// used for the recorded wall-clock time and calendar date.
func NewAttendanceService(repo attendanceRepository, students studentCodeLookup, audit auditRecorder, scanners codeScanner, metrics *MetricsService, loc *time.Location, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		audit:     audit,
		scanners:  scanners,
		metrics:   metrics,
		validator: validate,
		location:  loc,
		logger:    logger,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// RecordForCode resolves the code to a student and appends an attendance row numbered
// inside the student's current 8-lesson cycle. The row is written whether or not the
// lesson is paid; Paid in the outcome is advisory.
func (s *AttendanceService) RecordForCode(ctx context.Context, code string, status models.AttendanceStatus) (*models.AttendanceOutcome, error) {
	code = strings.TrimSpace(code)
	if err := s.validator.Struct(models.RecordAttendanceRequest{Code: code}); err != nil {
		return nil, appErrors.Invalid(err, "code must be 6 digits")
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown attendance status %q", status))
	}

	if !s.acquire(code) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance for this code is already being recorded")
	}
	defer s.release(code)

	student, err := s.students.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to resolve student code")
	}

	now := s.now().In(s.location)
	record := &models.AttendanceRecord{
		StudentID:   student.ID,
		StudentName: student.FullName,
		Status:      status,
		Time:        now.Format(models.AttendanceTimeLayout),
		Date:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	outcome := &models.AttendanceOutcome{
		StudentID:   student.ID,
		StudentName: student.FullName,
		Status:      status,
		Record:      record,
	}

	err = s.repo.CreateSequenced(ctx, record, func(prior, paidMonths int) error {
		inCycle, err := lessoncycle.LessonInCycle(prior)
		if err != nil {
			return err
		}
		raw := prior + 1
		paid, err := lessonPaid(paidMonths, raw)
		if err != nil {
			return err
		}
		record.LessonNumber = inCycle
		outcome.LessonInCycle = inCycle
		outcome.RawLessonNumber = raw
		outcome.Paid = paid
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Persistence(err, "failed to record attendance")
	}

	s.metrics.RecordAttendance(status, outcome.Paid)
	s.logger.Info("attendance recorded",
		zap.String("student_id", student.ID),
		zap.String("status", string(status)),
		zap.Int("lesson_in_cycle", outcome.LessonInCycle),
		zap.Int("raw_lesson_number", outcome.RawLessonNumber),
		zap.Bool("paid", outcome.Paid),
	)
	return outcome, nil
}

// ScanAndRecord runs a scanning session on the device and records the decoded code as
// present.
func (s *AttendanceService) ScanAndRecord(ctx context.Context, deviceID string, camera scanner.Camera) (*models.AttendanceOutcome, error) {
	if s.scanners == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "camera scanning is disabled")
	}
	code, err := s.scanners.Scan(ctx, deviceID, camera)
	if err != nil {
		return nil, scanError(err)
	}
	return s.RecordForCode(ctx, code, models.AttendancePresent)
}

func scanError(err error) error {
	switch {
	case errors.Is(err, scanner.ErrPermissionDenied):
		return appErrors.Wrap(err, appErrors.ErrPermissionDenied.Code, appErrors.ErrPermissionDenied.Status, "camera permission denied, enter the code manually")
	case errors.Is(err, scanner.ErrNoCode):
		return appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "no code found in the captured frames")
	case errors.Is(err, scanner.ErrTimeout):
		return appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "scan timed out before a code was read")
	case errors.Is(err, scanner.ErrCancelled):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "scan session was replaced or cancelled")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "camera scan failed")
	}
}

// List returns attendance rows newest first.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown attendance status %q", filter.Status))
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list attendance")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StudentHistory returns the student's most recent attendance rows.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, studentHistoryLimit)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load attendance history")
	}
	return records, nil
}

// Delete removes one attendance row. Later rows keep their stored lesson numbers.
func (s *AttendanceService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Persistence(err, "failed to delete attendance")
	}
	if s.audit != nil {
		entry := &models.AuditLog{Action: models.AuditActionAttendanceDelete, Resource: "attendance", ResourceID: &id}
		if actorID != "" {
			entry.UserID = &actorID
		}
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("failed to record attendance audit log", zap.Error(err))
		}
	}
	return nil
}

func (s *AttendanceService) acquire(code string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[code]; busy {
		return false
	}
	s.inflight[code] = struct{}{}
	return true
}

func (s *AttendanceService) release(code string) {
	s.inflightMu.Lock()
	delete(s.inflight, code)
	s.inflightMu.Unlock()
}

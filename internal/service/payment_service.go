package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/lessoncycle"
	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/repository"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

const (
	paymentResetResource = "payments:reset-all"
	paymentResetClaimKey = "payments:reset-claimed:"
)

type paymentRepository interface {
	RecordMonth(ctx context.Context, payment *models.Payment, month string, paidAt time.Time) (*repository.RecordMonthResult, error)
	PaidMonthCount(ctx context.Context, studentID string) (int, bool, error)
	FindByStudent(ctx context.Context, studentID string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

type paymentStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	CountAttendance(ctx context.Context, studentID string) (int, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type confirmationSigner interface {
	Generate(subject, resource string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// tokenClaims marks a one-time token as used. Claim reports false when the key was
// already claimed and not yet expired.
type tokenClaims interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// localClaims keeps claimed keys in process memory until they expire.
type localClaims struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func newLocalClaims() *localClaims {
	return &localClaims{seen: make(map[string]time.Time), now: time.Now}
}

func (c *localClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, until := range c.seen {
		if !now.Before(until) {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[key]; ok {
		return false, nil
	}
	c.seen[key] = now.Add(ttl)
	return true, nil
}

// PaymentService is the payment ledger: it records paid months per student and
// answers whether a raw lesson number is covered.
type PaymentService struct {
	repo      paymentRepository
	students  paymentStudentLookup
	audit     auditRecorder
	signer    confirmationSigner
	claims    tokenClaims
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the payment ledger.
func NewPaymentService(repo paymentRepository, students paymentStudentLookup, audit auditRecorder, signer confirmationSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:      repo,
		students:  students,
		audit:     audit,
		signer:    signer,
		claims:    newLocalClaims(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// HasPaidForLesson reports whether the student's paid months cover the raw lesson
// number. A student without any payment is unpaid.
func (s *PaymentService) HasPaidForLesson(ctx context.Context, studentID string, raw int) (bool, error) {
	if _, err := lessoncycle.RequiredPaidMonths(raw); err != nil {
		return false, err
	}
	count, exists, err := s.repo.PaidMonthCount(ctx, studentID)
	if err != nil {
		return false, appErrors.Persistence(err, "failed to load payment")
	}
	if !exists {
		return false, nil
	}
	return lessonPaid(count, raw)
}

// lessonPaid applies the ledger rule to a paid month count already read by the caller.
// A student without a payment has a count of zero and is never covered.
func lessonPaid(paidMonths, raw int) (bool, error) {
	return lessoncycle.IsCovered(paidMonths, raw)
}

// RecordPayment adds a paid month for the student, creating the payment on first
// use. A month label already present is rejected with DUPLICATE_MONTH.
func (s *PaymentService) RecordPayment(ctx context.Context, req models.RecordPaymentRequest) (*models.PaymentSummary, error) {
	req.Month = strings.TrimSpace(req.Month)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid payment payload")
	}
	if req.Month == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month is required")
	}

	payment := &models.Payment{
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		StudentCode: req.StudentCode,
		GroupName:   req.GroupName,
	}
	if s.students != nil {
		student, err := s.students.FindByID(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrStudentNotFound
			}
			return nil, appErrors.Persistence(err, "failed to load student")
		}
		payment.StudentName = student.FullName
		payment.StudentCode = student.Code
		payment.GroupName = student.GroupName
	}

	result, err := s.repo.RecordMonth(ctx, payment, req.Month, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateMonth) {
			s.metrics.RecordPayment("duplicate")
			return nil, appErrors.Clone(appErrors.ErrDuplicateMonth,
				fmt.Sprintf("month %q is already paid for %s", req.Month, payment.StudentName))
		}
		return nil, appErrors.Persistence(err, "failed to record payment")
	}
	if result.Created {
		s.metrics.RecordPayment("created")
	} else {
		s.metrics.RecordPayment("appended")
	}

	stored, err := s.repo.FindByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load payment")
	}
	return &models.PaymentSummary{
		Payment:        stored,
		Month:          req.Month,
		PaidMonthCount: result.PaidMonths,
		Created:        result.Created,
	}, nil
}

// List returns payments with their paid months.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list payments")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetByStudent returns the student's payment record.
func (s *PaymentService) GetByStudent(ctx context.Context, studentID string) (*models.Payment, error) {
	payment, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no payment recorded for student")
		}
		return nil, appErrors.Persistence(err, "failed to load payment")
	}
	return payment, nil
}

// Coverage compares the student's paid months with the lessons attended so far.
func (s *PaymentService) Coverage(ctx context.Context, studentID string) (*models.PaymentCoverage, error) {
	if s.students == nil {
		return nil, appErrors.Wrap(errors.New("student lookup missing"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "coverage unavailable")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}
	attended, err := s.students.CountAttendance(ctx, studentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to count attendance")
	}
	paid, _, err := s.repo.PaidMonthCount(ctx, studentID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load payment")
	}

	coverage := &models.PaymentCoverage{
		StudentID:       studentID,
		PaidMonths:      paid,
		LessonsAttended: attended,
		CoveredThrough:  lessoncycle.CoveredThrough(paid),
	}
	if attended > 0 {
		if coverage.RequiredMonths, err = lessoncycle.RequiredPaidMonths(attended); err != nil {
			return nil, err
		}
	}
	if coverage.NextLessonPaid, err = lessonPaid(paid, attended+1); err != nil {
		return nil, err
	}
	return coverage, nil
}

// SetTokenClaims replaces the in-process record of used reset tokens, typically with a
// shared cache so a token cannot be replayed against another instance.
func (s *PaymentService) SetTokenClaims(claims tokenClaims) {
	if claims != nil {
		s.claims = claims
	}
}

// DeletePayment removes a payment together with its paid months.
func (s *PaymentService) DeletePayment(ctx context.Context, actorID, paymentID string) error {
	if err := s.repo.Delete(ctx, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Persistence(err, "failed to delete payment")
	}
	s.recordAudit(ctx, actorID, models.AuditActionPaymentDelete, &paymentID, nil)
	return nil
}

// RequestResetConfirmation issues the short-lived token that DeleteAllPayments requires.
func (s *PaymentService) RequestResetConfirmation(ctx context.Context, actorID string) (*models.ResetConfirmation, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment reset is disabled")
	}
	token, expiresAt, err := s.signer.Generate(actorID, paymentResetResource+":"+uuid.NewString())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue confirmation")
	}
	s.recordAudit(ctx, actorID, models.AuditActionPaymentResetIssue, nil, map[string]interface{}{"expiresAt": expiresAt})
	return &models.ResetConfirmation{Token: token, ExpiresAt: expiresAt}, nil
}

// DeleteAllPayments wipes every payment once the caller presents a valid confirmation
// token issued to the same administrator. Each token is accepted once.
func (s *PaymentService) DeleteAllPayments(ctx context.Context, actorID, token string) (int64, error) {
	if s.signer == nil {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "payment reset is disabled")
	}
	if strings.TrimSpace(token) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "confirmation token is required")
	}
	subject, resource, expiresAt, err := s.signer.Parse(token, false)
	nonce := strings.TrimPrefix(resource, paymentResetResource+":")
	if err != nil || subject != actorID || nonce == resource || nonce == "" {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired confirmation token")
	}
	ttl := expiresAt.Sub(s.now()) + time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	claimed, err := s.claims.Claim(ctx, paymentResetClaimKey+nonce, ttl)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to verify confirmation token")
	}
	if !claimed {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "confirmation token already used")
	}
	removed, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to delete payments")
	}
	s.logger.Warn("all payments deleted", zap.String("actor_id", actorID), zap.Int64("payments", removed))
	s.recordAudit(ctx, actorID, models.AuditActionPaymentResetAll, nil, map[string]interface{}{"payments": removed})
	return removed, nil
}

func (s *PaymentService) recordAudit(ctx context.Context, actorID, action string, resourceID *string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "payment",
		ResourceID: resourceID,
		NewValues:  payload,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record payment audit log", zap.String("action", action), zap.Error(err))
	}
}

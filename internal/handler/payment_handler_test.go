package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type fakePaymentService struct {
	recorded    models.RecordPaymentRequest
	recordErr   error
	resetActor  string
	deleteActor string
	deleteToken string
	deleteErr   error
}

func (f *fakePaymentService) RecordPayment(ctx context.Context, req models.RecordPaymentRequest) (*models.PaymentSummary, error) {
	f.recorded = req
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return &models.PaymentSummary{Month: req.Month, PaidMonthCount: 1, Created: true}, nil
}

func (f *fakePaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakePaymentService) GetByStudent(ctx context.Context, studentID string) (*models.Payment, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
}

func (f *fakePaymentService) DeletePayment(ctx context.Context, actorID, paymentID string) error {
	return nil
}

func (f *fakePaymentService) RequestResetConfirmation(ctx context.Context, actorID string) (*models.ResetConfirmation, error) {
	f.resetActor = actorID
	return &models.ResetConfirmation{Token: "reset-token", ExpiresAt: time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)}, nil
}

func (f *fakePaymentService) DeleteAllPayments(ctx context.Context, actorID, token string) (int64, error) {
	f.deleteActor = actorID
	f.deleteToken = token
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 7, nil
}

func TestPaymentRecordCreated(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewPaymentHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/payments", jsonBody(t, map[string]string{"studentId": "s-1", "month": "March"}), adminClaims)
	h.Record(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "March", svc.recorded.Month)
	var summary models.PaymentSummary
	decodeData(t, rec, &summary)
	assert.True(t, summary.Created)
}

func TestPaymentRecordDuplicateMonth(t *testing.T) {
	h := NewPaymentHandler(&fakePaymentService{recordErr: appErrors.ErrDuplicateMonth})

	c, rec := newTestContext(http.MethodPost, "/payments", jsonBody(t, map[string]string{"studentId": "s-1", "month": "March"}), adminClaims)
	h.Record(c)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrDuplicateMonth.Code, errorCode(t, rec))
}

func TestPaymentRequestResetUsesCaller(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewPaymentHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/payments/reset/confirmation", nil, adminClaims)
	h.RequestReset(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, adminClaims.UserID, svc.resetActor)
	var confirmation models.ResetConfirmation
	decodeData(t, rec, &confirmation)
	assert.Equal(t, "reset-token", confirmation.Token)
}

func TestPaymentDeleteAllRequiresToken(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewPaymentHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/payments", nil, adminClaims)
	h.DeleteAll(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, rec))
	assert.Empty(t, svc.deleteToken)
}

func TestPaymentDeleteAllAcceptsHeaderToken(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewPaymentHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/payments", nil, adminClaims)
	c.Request.Header.Set("X-Confirmation-Token", "reset-token")
	h.DeleteAll(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reset-token", svc.deleteToken)
	assert.Equal(t, adminClaims.UserID, svc.deleteActor)
	var body map[string]int64
	decodeData(t, rec, &body)
	assert.Equal(t, int64(7), body["deleted"])
}

func TestPaymentDeleteAllRejectedToken(t *testing.T) {
	h := NewPaymentHandler(&fakePaymentService{deleteErr: appErrors.Clone(appErrors.ErrForbidden, "confirmation token invalid")})

	c, rec := newTestContext(http.MethodDelete, "/payments?token=stale", nil, adminClaims)
	h.DeleteAll(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentDeleteAllWithoutClaims(t *testing.T) {
	h := NewPaymentHandler(&fakePaymentService{})

	c, rec := newTestContext(http.MethodDelete, "/payments?token=x", nil, nil)
	h.DeleteAll(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

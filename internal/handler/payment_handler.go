package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
	"github.com/noah-isme/tutoring-center-api/pkg/response"
)

type paymentService interface {
	RecordPayment(ctx context.Context, req models.RecordPaymentRequest) (*models.PaymentSummary, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error)
	GetByStudent(ctx context.Context, studentID string) (*models.Payment, error)
	DeletePayment(ctx context.Context, actorID, paymentID string) error
	RequestResetConfirmation(ctx context.Context, actorID string) (*models.ResetConfirmation, error)
	DeleteAllPayments(ctx context.Context, actorID, token string) (int64, error)
}

// PaymentHandler exposes the payment ledger.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(service paymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param search query string false "Search by student name or code"
// @Param groupName query string false "Filter by group"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter := models.PaymentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		GroupName: strings.TrimSpace(c.Query("groupName")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	payments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Record godoc
// @Summary Record a paid month
// @Description Creates the student's payment record on first use; a month already paid is rejected
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req models.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid payment payload"))
		return
	}
	summary, err := h.service.RecordPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// ByStudent godoc
// @Summary Payment record of a student
// @Tags Payments
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/student/{studentId} [get]
func (h *PaymentHandler) ByStudent(c *gin.Context) {
	payment, err := h.service.GetByStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Delete godoc
// @Summary Delete a payment record
// @Tags Payments
// @Param id path string true "Payment ID"
// @Success 204
// @Router /payments/{id} [delete]
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.service.DeletePayment(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RequestReset godoc
// @Summary Issue a confirmation token for wiping all payments
// @Tags Payments
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /payments/reset/confirmation [post]
func (h *PaymentHandler) RequestReset(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		return
	}
	confirmation, err := h.service.RequestResetConfirmation(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, confirmation)
}

// DeleteAll godoc
// @Summary Delete every payment
// @Description Requires the token issued by /payments/reset/confirmation to the same administrator
// @Tags Payments
// @Produce json
// @Param token query string true "Confirmation token"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /payments [delete]
func (h *PaymentHandler) DeleteAll(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		return
	}
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("X-Confirmation-Token")
	}
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "confirmation token is required"))
		return
	}
	removed, err := h.service.DeleteAllPayments(c.Request.Context(), claims.UserID, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": removed}, nil)
}

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

type parentService interface {
	List(ctx context.Context, studentID string) ([]models.Parent, error)
	Create(ctx context.Context, req models.CreateParentRequest) (*models.Parent, error)
	Delete(ctx context.Context, id string) error
	Overview(ctx context.Context, parentID string) (*models.ParentOverview, error)
}

// ParentHandler exposes parent accounts and the parent portal.
type ParentHandler struct {
	service parentService
}

// NewParentHandler constructs the handler.
func NewParentHandler(service parentService) *ParentHandler {
	return &ParentHandler{service: service}
}

// List godoc
// @Summary List parents
// @Tags Parents
// @Produce json
// @Param studentId query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Router /parents [get]
func (h *ParentHandler) List(c *gin.Context) {
	parents, err := h.service.List(c.Request.Context(), strings.TrimSpace(c.Query("studentId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parents, nil)
}

// Create godoc
// @Summary Register a parent
// @Description The phone number becomes the parent's login
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body models.CreateParentRequest true "Parent payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /parents [post]
func (h *ParentHandler) Create(c *gin.Context) {
	var req models.CreateParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid parent payload"))
		return
	}
	parent, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, parent)
}

// Delete godoc
// @Summary Delete a parent
// @Tags Parents
// @Param id path string true "Parent ID"
// @Success 204
// @Router /parents/{id} [delete]
func (h *ParentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Overview godoc
// @Summary Parent portal overview
// @Tags Parents
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /parents/me/overview [get]
func (h *ParentHandler) Overview(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		return
	}
	if claims.Role != models.RoleParent || claims.ParentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only parent accounts have an overview"))
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), claims.ParentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-center-api/internal/middleware"
	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
	"github.com/noah-isme/tutoring-center-api/pkg/response"
)

const dateLayout = "2006-01-02"

// claimsFromContext returns the caller's claims, writing a 401 when absent.
func claimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func actorID(c *gin.Context) string {
	if claims, ok := middleware.CurrentUser(c); ok {
		return claims.UserID
	}
	return ""
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, key+" must be formatted as YYYY-MM-DD")
	}
	return &parsed, nil
}

func invalidPayload(err error, message string) error {
	return appErrors.Invalid(err, message)
}

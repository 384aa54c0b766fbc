package handler

import (
	"context"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/scanner"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
	"github.com/noah-isme/tutoring-center-api/pkg/response"
)

const (
	maxScanFrames     = 30
	maxScanFrameBytes = 4 << 20
)

type attendanceService interface {
	RecordForCode(ctx context.Context, code string, status models.AttendanceStatus) (*models.AttendanceOutcome, error)
	ScanAndRecord(ctx context.Context, deviceID string, camera scanner.Camera) (*models.AttendanceOutcome, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error)
	Delete(ctx context.Context, actorID, id string) error
}

type scanCanceller interface {
	Cancel(deviceID string) bool
}

// AttendanceHandler exposes the attendance desk endpoints.
type AttendanceHandler struct {
	service  attendanceService
	sessions scanCanceller
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService, sessions scanCanceller) *AttendanceHandler {
	return &AttendanceHandler{service: service, sessions: sessions}
}

// RecordCode godoc
// @Summary Record presence by student code
// @Description Writes the attendance row even when the lesson is unpaid; paid is advisory
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.RecordAttendanceRequest true "Student code"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/code [post]
func (h *AttendanceHandler) RecordCode(c *gin.Context) {
	h.record(c, models.AttendancePresent)
}

// RecordAbsence godoc
// @Summary Record absence by student code
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.RecordAttendanceRequest true "Student code"
// @Success 201 {object} response.Envelope
// @Router /attendance/absence [post]
func (h *AttendanceHandler) RecordAbsence(c *gin.Context) {
	h.record(c, models.AttendanceAbsent)
}

func (h *AttendanceHandler) record(c *gin.Context, status models.AttendanceStatus) {
	var req models.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "code is required"))
		return
	}
	outcome, err := h.service.RecordForCode(c.Request.Context(), req.Code, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// Scan godoc
// @Summary Record presence from camera frames
// @Description Runs uploaded frames through the scan pipeline; denied=true reports that the device refused camera access
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param deviceId formData string true "Scanning device"
// @Param denied formData bool false "Camera permission was refused"
// @Param frames formData file false "PNG or JPEG frames (repeatable)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	deviceID := strings.TrimSpace(c.PostForm("deviceId"))
	if deviceID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidArgument, "deviceId is required"))
		return
	}
	var camera scanner.Camera
	if c.PostForm("denied") == "true" {
		camera = scanner.NewDeniedCamera()
	} else {
		form, err := c.MultipartForm()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "multipart frames are required"))
			return
		}
		frames, err := readFrames(form.File["frames"])
		if err != nil {
			response.Error(c, err)
			return
		}
		camera = scanner.NewFrameSetCamera(frames...)
	}

	outcome, err := h.service.ScanAndRecord(c.Request.Context(), deviceID, camera)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

func readFrames(files []*multipart.FileHeader) ([]image.Image, error) {
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "at least one frame is required")
	}
	if len(files) > maxScanFrames {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "too many frames")
	}
	readers := make([]io.Reader, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxScanFrameBytes {
			return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "frame exceeds size limit")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "unreadable frame")
		}
		defer f.Close()
		readers = append(readers, f)
	}
	frames, err := scanner.DecodeFrames(readers...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "frames must be PNG or JPEG images")
	}
	return frames, nil
}

// CancelScan godoc
// @Summary Cancel the active scan on a device
// @Tags Attendance
// @Param deviceId path string true "Scanning device"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attendance/scan/{deviceId} [delete]
func (h *AttendanceHandler) CancelScan(c *gin.Context) {
	if h.sessions == nil || !h.sessions.Cancel(c.Param("deviceId")) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no active scan on device"))
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List attendance
// @Tags Attendance
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "present or absent"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter := models.AttendanceFilter{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		Status:    models.AttendanceStatus(c.Query("status")),
	}
	var err error
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Delete godoc
// @Summary Delete attendance row
// @Tags Attendance
// @Param id path string true "Attendance ID"
// @Success 204
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/scanner"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type fakeAttendanceService struct {
	recordedCode   string
	recordedStatus models.AttendanceStatus
	recordErr      error
	scannedDevice  string
	filter         models.AttendanceFilter
}

func (f *fakeAttendanceService) RecordForCode(ctx context.Context, code string, status models.AttendanceStatus) (*models.AttendanceOutcome, error) {
	f.recordedCode = code
	f.recordedStatus = status
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return &models.AttendanceOutcome{StudentID: "s-1", Status: status, Paid: true, LessonInCycle: 2, RawLessonNumber: 6}, nil
}

func (f *fakeAttendanceService) ScanAndRecord(ctx context.Context, deviceID string, camera scanner.Camera) (*models.AttendanceOutcome, error) {
	f.scannedDevice = deviceID
	code, err := scanner.NewSession(deviceID, camera, scanner.NewQRDecoder(), scanner.Options{}).Run(ctx)
	if err != nil {
		if err == scanner.ErrPermissionDenied {
			return nil, appErrors.ErrPermissionDenied
		}
		return nil, err
	}
	return f.RecordForCode(ctx, code, models.AttendancePresent)
}

func (f *fakeAttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	f.filter = filter
	return []models.AttendanceRecord{{ID: "a-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeAttendanceService) Delete(ctx context.Context, actorID, id string) error {
	return nil
}

type fakeCanceller struct {
	active map[string]bool
}

func (f *fakeCanceller) Cancel(deviceID string) bool {
	ok := f.active[deviceID]
	delete(f.active, deviceID)
	return ok
}

func multipartScan(t *testing.T, fields map[string]string, frames ...[]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i, frame := range frames {
		part, err := w.CreateFormFile("frames", "frame"+string(rune('a'+i))+".png")
		require.NoError(t, err)
		_, err = part.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestAttendanceRecordCode(t *testing.T) {
	svc := &fakeAttendanceService{}
	h := NewAttendanceHandler(svc, nil)

	c, rec := newTestContext(http.MethodPost, "/attendance/code", jsonBody(t, map[string]string{"code": "482913"}), adminClaims)
	h.RecordCode(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "482913", svc.recordedCode)
	assert.Equal(t, models.AttendancePresent, svc.recordedStatus)
	var outcome models.AttendanceOutcome
	decodeData(t, rec, &outcome)
	assert.True(t, outcome.Paid)
	assert.Equal(t, 2, outcome.LessonInCycle)
}

func TestAttendanceRecordAbsence(t *testing.T) {
	svc := &fakeAttendanceService{}
	h := NewAttendanceHandler(svc, nil)

	c, rec := newTestContext(http.MethodPost, "/attendance/absence", jsonBody(t, map[string]string{"code": "482913"}), adminClaims)
	h.RecordAbsence(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.AttendanceAbsent, svc.recordedStatus)
}

func TestAttendanceRecordCodeMalformedBody(t *testing.T) {
	h := NewAttendanceHandler(&fakeAttendanceService{}, nil)

	c, rec := newTestContext(http.MethodPost, "/attendance/code", bytes.NewBufferString("{"), adminClaims)
	h.RecordCode(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, errorCode(t, rec))
}

func TestAttendanceRecordCodeUnknownStudent(t *testing.T) {
	h := NewAttendanceHandler(&fakeAttendanceService{recordErr: appErrors.ErrStudentNotFound}, nil)

	c, rec := newTestContext(http.MethodPost, "/attendance/code", jsonBody(t, map[string]string{"code": "000000"}), adminClaims)
	h.RecordCode(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, errorCode(t, rec))
}

func TestAttendanceScanDecodesUploadedFrame(t *testing.T) {
	png, err := qrcode.Encode("100200", qrcode.Medium, 256)
	require.NoError(t, err)
	body, contentType := multipartScan(t, map[string]string{"deviceId": "desk-1"}, png)

	svc := &fakeAttendanceService{}
	h := NewAttendanceHandler(svc, nil)
	c, rec := newTestContext(http.MethodPost, "/attendance/scan", nil, adminClaims)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/scan", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Scan(c)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "desk-1", svc.scannedDevice)
	assert.Equal(t, "100200", svc.recordedCode)
}

func TestAttendanceScanDeniedCamera(t *testing.T) {
	body, contentType := multipartScan(t, map[string]string{"deviceId": "desk-1", "denied": "true"})

	h := NewAttendanceHandler(&fakeAttendanceService{}, nil)
	c, rec := newTestContext(http.MethodPost, "/attendance/scan", nil, adminClaims)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/scan", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Scan(c)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, errorCode(t, rec))
}

func TestAttendanceScanRequiresFrames(t *testing.T) {
	body, contentType := multipartScan(t, map[string]string{"deviceId": "desk-1"})

	h := NewAttendanceHandler(&fakeAttendanceService{}, nil)
	c, rec := newTestContext(http.MethodPost, "/attendance/scan", nil, adminClaims)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/scan", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Scan(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceScanRejectsNonImageFrame(t *testing.T) {
	body, contentType := multipartScan(t, map[string]string{"deviceId": "desk-1"}, []byte("not an image"))

	h := NewAttendanceHandler(&fakeAttendanceService{}, nil)
	c, rec := newTestContext(http.MethodPost, "/attendance/scan", nil, adminClaims)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/scan", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Scan(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, errorCode(t, rec))
}

func TestAttendanceCancelScan(t *testing.T) {
	sessions := &fakeCanceller{active: map[string]bool{"desk-1": true}}
	h := NewAttendanceHandler(&fakeAttendanceService{}, sessions)

	c, rec := newTestContext(http.MethodDelete, "/attendance/scan/desk-1", nil, adminClaims)
	c.Params = append(c.Params, ginParam("deviceId", "desk-1"))
	h.CancelScan(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = newTestContext(http.MethodDelete, "/attendance/scan/desk-1", nil, adminClaims)
	c.Params = append(c.Params, ginParam("deviceId", "desk-1"))
	h.CancelScan(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttendanceListParsesDates(t *testing.T) {
	svc := &fakeAttendanceService{}
	h := NewAttendanceHandler(svc, nil)

	c, rec := newTestContext(http.MethodGet, "/attendance?from=2024-03-01&to=2024-03-31&page=2&limit=10", nil, adminClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.From)
	require.NotNil(t, svc.filter.To)
	assert.Equal(t, "2024-03-01", svc.filter.From.Format("2006-01-02"))
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 10, svc.filter.PageSize)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestAttendanceListRejectsBadDate(t *testing.T) {
	h := NewAttendanceHandler(&fakeAttendanceService{}, nil)

	c, rec := newTestContext(http.MethodGet, "/attendance?from=03/01/2024", nil, adminClaims)
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

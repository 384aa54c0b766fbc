package handler

import (
	"context"
	"net/http"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type fakeStudentService struct {
	filter  models.StudentFilter
	actor   string
	created models.CreateStudentRequest
}

func (f *fakeStudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	f.filter = filter
	return []models.Student{{ID: "s-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeStudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	if id != "s-1" {
		return nil, appErrors.ErrStudentNotFound
	}
	return &models.Student{ID: id, Code: "100200", FullName: "Sara Adel"}, nil
}

func (f *fakeStudentService) Create(ctx context.Context, actorID string, req models.CreateStudentRequest) (*models.Student, error) {
	f.actor = actorID
	f.created = req
	return &models.Student{ID: "s-2", FullName: req.FullName, Code: "482913"}, nil
}

func (f *fakeStudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentService) Delete(ctx context.Context, actorID, id string) error { return nil }

func (f *fakeStudentService) QRCode(ctx context.Context, id string) ([]byte, *models.Student, error) {
	student, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	png, err := qrcode.Encode(student.Code, qrcode.Medium, 128)
	return png, student, err
}

type fakeStudentHistory struct{}

func (fakeStudentHistory) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	return []models.AttendanceRecord{{ID: "a-1", StudentID: studentID}}, nil
}

type fakeStudentCoverage struct{}

func (fakeStudentCoverage) Coverage(ctx context.Context, studentID string) (*models.PaymentCoverage, error) {
	return &models.PaymentCoverage{}, nil
}

func newStudentHandler(svc *fakeStudentService) *StudentHandler {
	return NewStudentHandler(svc, fakeStudentHistory{}, fakeStudentCoverage{})
}

func TestStudentListFilters(t *testing.T) {
	svc := &fakeStudentService{}
	h := newStudentHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/students?search=%20sara%20&gradeLevel=FIRST_SECONDARY&groupName=A&page=3", nil, adminClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sara", svc.filter.Search)
	assert.Equal(t, models.GradeFirstSecondary, svc.filter.GradeLevel)
	assert.Equal(t, "A", svc.filter.GroupName)
	assert.Equal(t, 3, svc.filter.Page)
}

func TestStudentListUnknownGrade(t *testing.T) {
	h := newStudentHandler(&fakeStudentService{})

	c, rec := newTestContext(http.MethodGet, "/students?gradeLevel=FOURTH", nil, adminClaims)
	h.List(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, errorCode(t, rec))
}

func TestStudentCreatePassesActor(t *testing.T) {
	svc := &fakeStudentService{}
	h := newStudentHandler(svc)

	body := jsonBody(t, map[string]string{"fullName": "Omar Hany", "gradeLevel": "FIRST_SECONDARY", "groupName": "A"})
	c, rec := newTestContext(http.MethodPost, "/students", body, adminClaims)
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, adminClaims.UserID, svc.actor)
	assert.Equal(t, "Omar Hany", svc.created.FullName)
}

func TestStudentQRCodeServesPNG(t *testing.T) {
	h := newStudentHandler(&fakeStudentService{})

	c, rec := newTestContext(http.MethodGet, "/students/s-1/qr", nil, adminClaims)
	c.Params = append(c.Params, ginParam("id", "s-1"))
	h.QRCode(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="student-100200.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []byte("\x89PNG"), rec.Body.Bytes()[:4])
}

func TestStudentGetNotFound(t *testing.T) {
	h := newStudentHandler(&fakeStudentService{})

	c, rec := newTestContext(http.MethodGet, "/students/s-9", nil, adminClaims)
	c.Params = append(c.Params, ginParam("id", "s-9"))
	h.Get(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, errorCode(t, rec))
}

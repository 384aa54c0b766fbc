package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/service"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type fakeMediaService struct {
	studentGrade models.GradeLevel
	adminFilter  models.MediaFilter
	adminCalled  bool
	bookPath     string
	openToken    string
}

func (f *fakeMediaService) ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error) {
	f.adminCalled = true
	f.adminFilter = filter
	return []models.Video{{ID: "v-1"}, {ID: "v-2"}}, nil
}

func (f *fakeMediaService) StudentVideos(ctx context.Context, grade models.GradeLevel) []models.Video {
	f.studentGrade = grade
	return []models.Video{{ID: "v-1", GradeLevel: grade}}
}

func (f *fakeMediaService) CreateVideo(ctx context.Context, req models.CreateVideoRequest) (*models.Video, error) {
	return &models.Video{ID: "v-3"}, nil
}

func (f *fakeMediaService) DeleteVideo(ctx context.Context, id string) error { return nil }

func (f *fakeMediaService) ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error) {
	f.adminCalled = true
	f.adminFilter = filter
	return nil, nil
}

func (f *fakeMediaService) StudentBooks(ctx context.Context, grade models.GradeLevel) []models.Book {
	f.studentGrade = grade
	return []models.Book{}
}

func (f *fakeMediaService) UploadBook(ctx context.Context, actorID string, req models.UploadBookRequest, upload service.BookUpload) (*models.Book, error) {
	return &models.Book{ID: "b-1"}, nil
}

func (f *fakeMediaService) DeleteBook(ctx context.Context, id string) error { return nil }

func (f *fakeMediaService) BookDownloadURL(ctx context.Context, id string) (*models.BookDownload, error) {
	return &models.BookDownload{URL: "/api/v1/books/" + id + "/download?token=abc"}, nil
}

func (f *fakeMediaService) OpenBook(ctx context.Context, id, token string) (*models.Book, *os.File, error) {
	f.openToken = token
	if token != "abc" {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link invalid")
	}
	file, err := os.Open(f.bookPath)
	if err != nil {
		return nil, nil, err
	}
	return &models.Book{ID: id, Title: "Algebra / Unit 1", FilePath: "books/algebra.pdf", MimeType: "application/pdf"}, file, nil
}

type fakeStudentLookup struct {
	student *models.Student
}

func (f *fakeStudentLookup) Get(ctx context.Context, id string) (*models.Student, error) {
	if f.student == nil || f.student.ID != id {
		return nil, appErrors.ErrStudentNotFound
	}
	return f.student, nil
}

func TestMediaListVideosScopedForStudent(t *testing.T) {
	media := &fakeMediaService{}
	students := &fakeStudentLookup{student: &models.Student{ID: "s-1", GradeLevel: models.GradeSecondSecondary}}
	h := NewMediaHandler(media, students)

	c, rec := newTestContext(http.MethodGet, "/videos?gradeLevel=FIRST_SECONDARY", nil, studentClaims)
	h.ListVideos(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, media.adminCalled)
	assert.Equal(t, models.GradeSecondSecondary, media.studentGrade)
	var videos []models.Video
	decodeData(t, rec, &videos)
	require.Len(t, videos, 1)
}

func TestMediaListBooksScopedForParent(t *testing.T) {
	media := &fakeMediaService{}
	students := &fakeStudentLookup{student: &models.Student{ID: "s-1", GradeLevel: models.GradeThirdSecondary}}
	h := NewMediaHandler(media, students)

	c, rec := newTestContext(http.MethodGet, "/books", nil, parentClaims)
	h.ListBooks(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.GradeThirdSecondary, media.studentGrade)
}

func TestMediaListVideosAdminFilter(t *testing.T) {
	media := &fakeMediaService{}
	h := NewMediaHandler(media, &fakeStudentLookup{})

	c, rec := newTestContext(http.MethodGet, "/videos?gradeLevel=FIRST_SECONDARY&search=%20algebra%20", nil, adminClaims)
	h.ListVideos(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, media.adminCalled)
	assert.Equal(t, models.GradeFirstSecondary, media.adminFilter.GradeLevel)
	assert.Equal(t, "algebra", media.adminFilter.Search)
}

func TestMediaListVideosUnlinkedStudentForbidden(t *testing.T) {
	h := NewMediaHandler(&fakeMediaService{}, &fakeStudentLookup{})
	claims := &models.JWTClaims{UserID: "u-x", Role: models.RoleStudent}

	c, rec := newTestContext(http.MethodGet, "/videos", nil, claims)
	h.ListVideos(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMediaDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "algebra.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	media := &fakeMediaService{bookPath: path}
	h := NewMediaHandler(media, &fakeStudentLookup{})

	c, rec := newTestContext(http.MethodGet, "/books/b-1/download?token=abc", nil, nil)
	c.Params = append(c.Params, ginParam("id", "b-1"))
	h.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Algebra - Unit 1.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 test", rec.Body.String())
}

func TestMediaDownloadBadToken(t *testing.T) {
	h := NewMediaHandler(&fakeMediaService{}, &fakeStudentLookup{})

	c, rec := newTestContext(http.MethodGet, "/books/b-1/download?token=nope", nil, nil)
	c.Params = append(c.Params, ginParam("id", "b-1"))
	h.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSanitizeDownloadName(t *testing.T) {
	assert.Equal(t, "book", sanitizeDownloadName("  "))
	assert.Equal(t, "a-b-c", sanitizeDownloadName(`a/b\c`))
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
	"github.com/noah-isme/tutoring-center-api/pkg/storage"
)

type fakeMediaRepo struct {
	videos    []models.Video
	books     map[string]models.Book
	listCalls int
	listErr   error
	createErr error
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{books: map[string]models.Book{}}
}

func (f *fakeMediaRepo) ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []models.Video{}
	for _, v := range f.videos {
		if filter.GradeLevel == "" || v.GradeLevel == filter.GradeLevel {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeMediaRepo) CreateVideo(ctx context.Context, video *models.Video) error {
	video.ID = "vid-new"
	f.videos = append(f.videos, *video)
	return nil
}

func (f *fakeMediaRepo) DeleteVideo(ctx context.Context, id string) error {
	for i, v := range f.videos {
		if v.ID == id {
			f.videos = append(f.videos[:i], f.videos[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeMediaRepo) ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []models.Book{}
	for _, b := range f.books {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeMediaRepo) FindBook(ctx context.Context, id string) (*models.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (f *fakeMediaRepo) CreateBook(ctx context.Context, book *models.Book) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.books[book.ID] = *book
	return nil
}

func (f *fakeMediaRepo) DeleteBook(ctx context.Context, id string) error {
	if _, ok := f.books[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.books, id)
	return nil
}

type mediaFixture struct {
	svc   *MediaService
	repo  *fakeMediaRepo
	files *storage.LocalStorage
	cache *memoryCacheRepo
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newFakeMediaRepo()
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	signer := storage.NewSignedURLSigner("media-secret", time.Hour)
	svc := NewMediaService(repo, files, signer, cache, nil, zap.NewNop(), MediaConfig{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"application/pdf"},
		DownloadBasePath: "/api/v1",
	})
	return &mediaFixture{svc: svc, repo: repo, files: files, cache: cacheRepo}
}

func TestMediaServiceVideoListIsCached(t *testing.T) {
	f := newMediaFixture(t)
	f.repo.videos = []models.Video{{ID: "v1", Title: "Algebra", GradeLevel: models.GradeFirstSecondary}}
	ctx := context.Background()

	first, err := f.svc.ListVideos(ctx, models.MediaFilter{GradeLevel: models.GradeFirstSecondary})
	require.NoError(t, err)
	second, err := f.svc.ListVideos(ctx, models.MediaFilter{GradeLevel: models.GradeFirstSecondary})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.repo.listCalls)

	_, err = f.svc.CreateVideo(ctx, models.CreateVideoRequest{Title: "Geometry", URL: "https://videos.example.com/geo", GradeLevel: models.GradeFirstSecondary})
	require.NoError(t, err)
	assert.False(t, f.cache.has("media:videos:FIRST_SECONDARY"))

	refreshed, err := f.svc.ListVideos(ctx, models.MediaFilter{GradeLevel: models.GradeFirstSecondary})
	require.NoError(t, err)
	assert.Len(t, refreshed, 2)
}

func TestMediaServiceStudentListFailureReturnsEmpty(t *testing.T) {
	f := newMediaFixture(t)
	f.repo.listErr = errors.New("connection refused")
	ctx := context.Background()

	assert.Empty(t, f.svc.StudentVideos(ctx, models.GradeSecondSecondary))
	assert.NotNil(t, f.svc.StudentBooks(ctx, models.GradeSecondSecondary))

	_, err := f.svc.ListVideos(ctx, models.MediaFilter{})
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
}

func TestMediaServiceCreateVideoValidation(t *testing.T) {
	f := newMediaFixture(t)

	_, err := f.svc.CreateVideo(context.Background(), models.CreateVideoRequest{Title: "x", URL: "not a url", GradeLevel: models.GradeFirstSecondary})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func uploadPDF(t *testing.T, f *mediaFixture) *models.Book {
	t.Helper()
	body := "%PDF-1.4 tiny"
	book, err := f.svc.UploadBook(context.Background(), "admin-1",
		models.UploadBookRequest{Title: "Physics", GradeLevel: models.GradeThirdSecondary},
		BookUpload{Filename: "Physics.PDF", MimeType: "application/pdf", Size: int64(len(body)), Content: strings.NewReader(body)})
	require.NoError(t, err)
	return book
}

func TestMediaServiceUploadAndDownload(t *testing.T) {
	f := newMediaFixture(t)
	book := uploadPDF(t, f)
	assert.True(t, strings.HasPrefix(book.FilePath, "books/"))
	assert.True(t, strings.HasSuffix(book.FilePath, ".pdf"))

	link, err := f.svc.BookDownloadURL(context.Background(), book.ID)
	require.NoError(t, err)
	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/books/"+book.ID+"/download", parsed.Path)

	_, file, err := f.svc.OpenBook(context.Background(), book.ID, parsed.Query().Get("token"))
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 tiny", string(content))
}

func TestMediaServiceOpenBookRejectsForeignToken(t *testing.T) {
	f := newMediaFixture(t)
	book := uploadPDF(t, f)
	other := uploadPDF(t, f)

	link, err := f.svc.BookDownloadURL(context.Background(), other.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(link.URL)

	_, _, err = f.svc.OpenBook(context.Background(), book.ID, parsed.Query().Get("token"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, _, err = f.svc.OpenBook(context.Background(), book.ID, "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestMediaServiceUploadRejectsTypeAndSize(t *testing.T) {
	f := newMediaFixture(t)
	req := models.UploadBookRequest{Title: "Notes", GradeLevel: models.GradeFirstSecondary}

	_, err := f.svc.UploadBook(context.Background(), "admin-1", req, BookUpload{Filename: "a.exe", MimeType: "application/x-msdownload", Size: 3, Content: strings.NewReader("abc")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.UploadBook(context.Background(), "admin-1", req, BookUpload{Filename: "a.pdf", MimeType: "application/pdf", Size: 4096, Content: strings.NewReader("abc")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestMediaServiceUploadCleansUpOnRepoFailure(t *testing.T) {
	f := newMediaFixture(t)
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.UploadBook(context.Background(), "admin-1",
		models.UploadBookRequest{Title: "Notes", GradeLevel: models.GradeFirstSecondary},
		BookUpload{Filename: "n.pdf", MimeType: "application/pdf", Size: 3, Content: strings.NewReader("abc")})
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
	assert.Empty(t, f.repo.books)
}

func TestMediaServiceDeleteBookRemovesFile(t *testing.T) {
	f := newMediaFixture(t)
	book := uploadPDF(t, f)

	require.NoError(t, f.svc.DeleteBook(context.Background(), book.ID))
	_, err := f.files.Open(book.FilePath)
	assert.Error(t, err)
	assert.ErrorIs(t, f.svc.DeleteBook(context.Background(), book.ID), appErrors.ErrNotFound)
}

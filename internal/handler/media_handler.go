package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/internal/service"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
	"github.com/noah-isme/tutoring-center-api/pkg/response"
)

type mediaService interface {
	ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error)
	StudentVideos(ctx context.Context, grade models.GradeLevel) []models.Video
	CreateVideo(ctx context.Context, req models.CreateVideoRequest) (*models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error)
	StudentBooks(ctx context.Context, grade models.GradeLevel) []models.Book
	UploadBook(ctx context.Context, actorID string, req models.UploadBookRequest, upload service.BookUpload) (*models.Book, error)
	DeleteBook(ctx context.Context, id string) error
	BookDownloadURL(ctx context.Context, id string) (*models.BookDownload, error)
	OpenBook(ctx context.Context, id, token string) (*models.Book, *os.File, error)
}

type studentLookup interface {
	Get(ctx context.Context, id string) (*models.Student, error)
}

// MediaHandler exposes the video and book library.
type MediaHandler struct {
	media    mediaService
	students studentLookup
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(media mediaService, students studentLookup) *MediaHandler {
	return &MediaHandler{media: media, students: students}
}

// mediaScope resolves the grade level of the caller's linked student. scoped is false
// for administrators; ok is false once an error response has been written.
func (h *MediaHandler) mediaScope(c *gin.Context) (grade models.GradeLevel, scoped, ok bool) {
	claims, ok := claimsFromContext(c)
	if !ok {
		return "", false, false
	}
	if claims.Role == models.RoleAdmin {
		return "", false, true
	}
	if claims.StudentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return "", false, false
	}
	student, err := h.students.Get(c.Request.Context(), claims.StudentID)
	if err != nil {
		response.Error(c, err)
		return "", false, false
	}
	return student.GradeLevel, true, true
}

// ListVideos godoc
// @Summary List videos
// @Description Students and parents get the videos of their grade level; admins may filter
// @Tags Media
// @Produce json
// @Param gradeLevel query string false "Grade level"
// @Param search query string false "Search by title"
// @Success 200 {object} response.Envelope
// @Router /videos [get]
func (h *MediaHandler) ListVideos(c *gin.Context) {
	grade, scoped, ok := h.mediaScope(c)
	if !ok {
		return
	}
	if scoped {
		response.JSON(c, http.StatusOK, h.media.StudentVideos(c.Request.Context(), grade), nil)
		return
	}
	videos, err := h.media.ListVideos(c.Request.Context(), mediaFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, videos, nil)
}

// CreateVideo godoc
// @Summary Add a video link
// @Tags Media
// @Accept json
// @Produce json
// @Param payload body models.CreateVideoRequest true "Video payload"
// @Success 201 {object} response.Envelope
// @Router /videos [post]
func (h *MediaHandler) CreateVideo(c *gin.Context) {
	var req models.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid video payload"))
		return
	}
	video, err := h.media.CreateVideo(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, video)
}

// DeleteVideo godoc
// @Summary Delete a video
// @Tags Media
// @Param id path string true "Video ID"
// @Success 204
// @Router /videos/{id} [delete]
func (h *MediaHandler) DeleteVideo(c *gin.Context) {
	if err := h.media.DeleteVideo(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListBooks godoc
// @Summary List books
// @Description Students and parents get the books of their grade level; admins may filter
// @Tags Media
// @Produce json
// @Param gradeLevel query string false "Grade level"
// @Param search query string false "Search by title"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *MediaHandler) ListBooks(c *gin.Context) {
	grade, scoped, ok := h.mediaScope(c)
	if !ok {
		return
	}
	if scoped {
		response.JSON(c, http.StatusOK, h.media.StudentBooks(c.Request.Context(), grade), nil)
		return
	}
	books, err := h.media.ListBooks(c.Request.Context(), mediaFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, nil)
}

// UploadBook godoc
// @Summary Upload a book
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param gradeLevel formData string true "Grade level"
// @Param file formData file true "Book file"
// @Success 201 {object} response.Envelope
// @Router /books [post]
func (h *MediaHandler) UploadBook(c *gin.Context) {
	var req models.UploadBookRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid book payload"))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, invalidPayload(err, "book file is required"))
		return
	}
	file, err := fh.Open()
	if err != nil {
		response.Error(c, invalidPayload(err, "unreadable book file"))
		return
	}
	defer file.Close()

	book, err := h.media.UploadBook(c.Request.Context(), actorID(c), req, service.BookUpload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Content:  file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// DeleteBook godoc
// @Summary Delete a book
// @Tags Media
// @Param id path string true "Book ID"
// @Success 204
// @Router /books/{id} [delete]
func (h *MediaHandler) DeleteBook(c *gin.Context) {
	if err := h.media.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadURL godoc
// @Summary Signed download link for a book
// @Tags Media
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /books/{id}/download-url [get]
func (h *MediaHandler) DownloadURL(c *gin.Context) {
	link, err := h.media.BookDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a book file
// @Tags Media
// @Produce octet-stream
// @Param id path string true "Book ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /books/{id}/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	book, file, err := h.media.OpenBook(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat book file"))
		return
	}
	filename := sanitizeDownloadName(book.Title) + filepath.Ext(book.FilePath)
	response.Attachment(c, book.MimeType, filename, info.Size(), file)
}

func mediaFilter(c *gin.Context) models.MediaFilter {
	return models.MediaFilter{
		GradeLevel: models.GradeLevel(strings.TrimSpace(c.Query("gradeLevel"))),
		Search:     strings.TrimSpace(c.Query("search")),
	}
}

func sanitizeDownloadName(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\n', '\r':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if cleaned == "" {
		return "book"
	}
	return cleaned
}

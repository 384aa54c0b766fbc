package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type mediaRepository interface {
	ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error)
	CreateVideo(ctx context.Context, video *models.Video) error
	DeleteVideo(ctx context.Context, id string) error
	ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error)
	FindBook(ctx context.Context, id string) (*models.Book, error)
	CreateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id string) error
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// MediaConfig tunes uploads, download links and list caching.
type MediaConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	CacheTTL         time.Duration
	DownloadBasePath string
}

// BookUpload describes the uploaded file backing a book.
type BookUpload struct {
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
}

// MediaService manages the video and book library.
type MediaService struct {
	repo      mediaRepository
	files     fileStore
	signer    confirmationSigner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       MediaConfig
}

// NewMediaService constructs the media library.
func NewMediaService(repo mediaRepository, files fileStore, signer confirmationSigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg MediaConfig) *MediaService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 50 * 1024 * 1024
	}
	return &MediaService{repo: repo, files: files, signer: signer, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// ListVideos returns videos, read through the cache when no search term is given.
func (s *MediaService) ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error) {
	if filter.GradeLevel != "" && !filter.GradeLevel.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown grade level %q", filter.GradeLevel))
	}
	load := func(ctx context.Context) ([]models.Video, error) {
		videos, err := s.repo.ListVideos(ctx, filter)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to list videos")
		}
		return videos, nil
	}
	if filter.Search != "" {
		return load(ctx)
	}
	videos, _, err := readThrough(ctx, s.cache, mediaCacheKey(cacheKeyVideoPrefix, filter.GradeLevel), s.cfg.CacheTTL, load)
	return videos, err
}

// StudentVideos lists the videos for one grade level. Failures are logged and an
// empty list is returned.
func (s *MediaService) StudentVideos(ctx context.Context, grade models.GradeLevel) []models.Video {
	videos, err := s.ListVideos(ctx, models.MediaFilter{GradeLevel: grade})
	if err != nil {
		s.logger.Warn("student video list unavailable", zap.String("grade_level", string(grade)), zap.Error(err))
		return []models.Video{}
	}
	return videos
}

// CreateVideo registers a video link.
func (s *MediaService) CreateVideo(ctx context.Context, req models.CreateVideoRequest) (*models.Video, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid video payload")
	}
	video := &models.Video{Title: req.Title, Description: req.Description, URL: req.URL, GradeLevel: req.GradeLevel}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, appErrors.Persistence(err, "failed to create video")
	}
	s.forgetMedia(ctx, cacheKeyVideoPrefix, video.GradeLevel)
	return video, nil
}

// DeleteVideo removes a video link.
func (s *MediaService) DeleteVideo(ctx context.Context, id string) error {
	if err := s.repo.DeleteVideo(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return appErrors.Persistence(err, "failed to delete video")
	}
	_ = s.cache.Invalidate(ctx, cacheKeyVideoPrefix+"*")
	s.cache.Forget(ctx, cacheKeyDashboard)
	return nil
}

// ListBooks returns books, read through the cache when no search term is given.
func (s *MediaService) ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error) {
	if filter.GradeLevel != "" && !filter.GradeLevel.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown grade level %q", filter.GradeLevel))
	}
	load := func(ctx context.Context) ([]models.Book, error) {
		books, err := s.repo.ListBooks(ctx, filter)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to list books")
		}
		return books, nil
	}
	if filter.Search != "" {
		return load(ctx)
	}
	books, _, err := readThrough(ctx, s.cache, mediaCacheKey(cacheKeyBookPrefix, filter.GradeLevel), s.cfg.CacheTTL, load)
	return books, err
}

// StudentBooks lists the books for one grade level. Failures are logged and an empty
// list is returned.
func (s *MediaService) StudentBooks(ctx context.Context, grade models.GradeLevel) []models.Book {
	books, err := s.ListBooks(ctx, models.MediaFilter{GradeLevel: grade})
	if err != nil {
		s.logger.Warn("student book list unavailable", zap.String("grade_level", string(grade)), zap.Error(err))
		return []models.Book{}
	}
	return books
}

// UploadBook stores the file and records its metadata. The stored file is removed
// again when the metadata cannot be written.
func (s *MediaService) UploadBook(ctx context.Context, actorID string, req models.UploadBookRequest, upload BookUpload) (*models.Book, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid book payload")
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "book file is required")
	}
	if upload.Size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("book file exceeds %d bytes", s.cfg.MaxFileSizeBytes))
	}
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(upload.MimeType, ";", 2)[0]))
	if !s.mimeAllowed(mime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not allowed", mime))
	}

	id := uuid.NewString()
	stored, err := s.files.SaveStream(path.Join("books", id+strings.ToLower(filepath.Ext(upload.Filename))), io.LimitReader(upload.Content, s.cfg.MaxFileSizeBytes))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store book file")
	}
	book := &models.Book{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		GradeLevel:  req.GradeLevel,
		FilePath:    stored,
		MimeType:    mime,
		SizeBytes:   upload.Size,
		UploadedBy:  actorID,
	}
	if err := s.repo.CreateBook(ctx, book); err != nil {
		if rmErr := s.files.Delete(stored); rmErr != nil {
			s.logger.Warn("failed to remove orphaned book file", zap.String("path", stored), zap.Error(rmErr))
		}
		return nil, appErrors.Persistence(err, "failed to create book")
	}
	s.forgetMedia(ctx, cacheKeyBookPrefix, book.GradeLevel)
	return book, nil
}

// DeleteBook removes the book row and its file.
func (s *MediaService) DeleteBook(ctx context.Context, id string) error {
	book, err := s.findBook(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Persistence(err, "failed to delete book")
	}
	if err := s.files.Delete(book.FilePath); err != nil {
		s.logger.Warn("failed to remove book file", zap.String("book_id", id), zap.Error(err))
	}
	_ = s.cache.Invalidate(ctx, cacheKeyBookPrefix+"*")
	s.cache.Forget(ctx, cacheKeyDashboard)
	return nil
}

// BookDownloadURL issues a signed, expiring link to the book file.
func (s *MediaService) BookDownloadURL(ctx context.Context, id string) (*models.BookDownload, error) {
	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(book.ID, book.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	link := fmt.Sprintf("%s/books/%s/download?token=%s", strings.TrimRight(s.cfg.DownloadBasePath, "/"), book.ID, url.QueryEscape(token))
	return &models.BookDownload{URL: link, ExpiresAt: expiresAt}, nil
}

// OpenBook validates a download token and opens the book file. The caller closes it.
func (s *MediaService) OpenBook(ctx context.Context, id, token string) (*models.Book, *os.File, error) {
	subject, resource, _, err := s.signer.Parse(token, false)
	if err != nil || subject != id {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if resource != book.FilePath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	file, err := s.files.Open(book.FilePath)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "book file missing")
	}
	return book, file, nil
}

func (s *MediaService) findBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindBook(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Persistence(err, "failed to load book")
	}
	return book, nil
}

func (s *MediaService) mimeAllowed(mime string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return mime != ""
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, mime) {
			return true
		}
	}
	return false
}

func (s *MediaService) forgetMedia(ctx context.Context, prefix string, grade models.GradeLevel) {
	s.cache.Forget(ctx, mediaCacheKey(prefix, grade), mediaCacheKey(prefix, ""), cacheKeyDashboard)
}

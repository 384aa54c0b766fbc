package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
)

const (
	videoColumns = "id, title, description, url, grade_level, created_at, updated_at"
	bookColumns  = "id, title, description, grade_level, file_path, mime_type, size_bytes, uploaded_by, created_at, updated_at"
)

// MediaRepository persists videos and books.
type MediaRepository struct {
	gw *database.Gateway
}

// NewMediaRepository constructs a MediaRepository.
func NewMediaRepository(gw *database.Gateway) *MediaRepository {
	return &MediaRepository{gw: gw}
}

func mediaWhere(filter models.MediaFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListVideos returns videos matching the filter, newest first.
func (r *MediaRepository) ListVideos(ctx context.Context, filter models.MediaFilter) ([]models.Video, error) {
	where, args := mediaWhere(filter)
	query := "SELECT " + videoColumns + " FROM videos" + where + " ORDER BY created_at DESC"
	videos := []models.Video{}
	if err := r.gw.DB().SelectContext(ctx, &videos, query, args...); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// CreateVideo inserts a video link.
func (r *MediaRepository) CreateVideo(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	const query = `INSERT INTO videos (id, title, description, url, grade_level, created_at, updated_at)
        VALUES (:id, :title, :description, :url, :grade_level, :created_at, :updated_at)`
	if _, err := r.gw.DB().NamedExecContext(ctx, query, video); err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

// DeleteVideo removes a video.
func (r *MediaRepository) DeleteVideo(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM videos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return expectAffected(res, "delete video")
}

// ListBooks returns books matching the filter, newest first.
func (r *MediaRepository) ListBooks(ctx context.Context, filter models.MediaFilter) ([]models.Book, error) {
	where, args := mediaWhere(filter)
	query := "SELECT " + bookColumns + " FROM books" + where + " ORDER BY created_at DESC"
	books := []models.Book{}
	if err := r.gw.DB().SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// FindBook returns a book. Returns sql.ErrNoRows when absent.
func (r *MediaRepository) FindBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := r.gw.DB().GetContext(ctx, &book, "SELECT "+bookColumns+" FROM books WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find book: %w", err)
	}
	return &book, nil
}

// CreateBook inserts book metadata after the file has been stored.
func (r *MediaRepository) CreateBook(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now
	const query = `INSERT INTO books (id, title, description, grade_level, file_path, mime_type, size_bytes, uploaded_by, created_at, updated_at)
        VALUES (:id, :title, :description, :grade_level, :file_path, :mime_type, :size_bytes, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.gw.DB().NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// DeleteBook removes a book row.
func (r *MediaRepository) DeleteBook(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return expectAffected(res, "delete book")
}

// Counts returns the number of videos and books.
func (r *MediaRepository) Counts(ctx context.Context) (int, int, error) {
	var counts struct {
		Videos int `db:"videos"`
		Books  int `db:"books"`
	}
	const query = `SELECT (SELECT COUNT(*) FROM videos) AS videos, (SELECT COUNT(*) FROM books) AS books`
	if err := r.gw.DB().GetContext(ctx, &counts, query); err != nil {
		return 0, 0, fmt.Errorf("count media: %w", err)
	}
	return counts.Videos, counts.Books, nil
}

package models

import "time"

// Video is an externally hosted lesson video shown to one grade level.
type Video struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	URL         string     `db:"url" json:"url"`
	GradeLevel  GradeLevel `db:"grade_level" json:"gradeLevel"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Book is an uploaded document stored under the media directory.
type Book struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	GradeLevel  GradeLevel `db:"grade_level" json:"gradeLevel"`
	FilePath    string     `db:"file_path" json:"-"`
	MimeType    string     `db:"mime_type" json:"mimeType"`
	SizeBytes   int64      `db:"size_bytes" json:"sizeBytes"`
	UploadedBy  string     `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// MediaFilter narrows video and book listings.
type MediaFilter struct {
	GradeLevel GradeLevel
	Search     string
}

// CreateVideoRequest registers a video link.
type CreateVideoRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	URL         string     `json:"url" validate:"required,url"`
	GradeLevel  GradeLevel `json:"gradeLevel" validate:"required,grade_level"`
}

// UploadBookRequest carries book metadata alongside the multipart file.
type UploadBookRequest struct {
	Title       string     `form:"title" validate:"required,max=200"`
	Description string     `form:"description" validate:"max=2000"`
	GradeLevel  GradeLevel `form:"gradeLevel" validate:"required,grade_level"`
}

// BookDownload is a signed download link for a book.
type BookDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

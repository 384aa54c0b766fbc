package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType names the dataset a report is built from.
type ReportType string

const (
	ReportTypeAttendance ReportType = "attendance"
	ReportTypePayments   ReportType = "payments"
	ReportTypeGrades     ReportType = "grades"
)

// ReportFormat is the rendered file type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus is a job's lifecycle state. QUEUED and PROCESSING jobs are
// replayed after a restart.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Terminal reports whether a job in this state will not run again.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed
}

// ContentType is the MIME type served for a rendered report.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// ReportJob is one export request and its progress. Params is stored as JSONB.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultPath   *string         `db:"result_path" json:"-"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
}

// HasResult reports whether a finished job still has its file on disk.
func (j *ReportJob) HasResult() bool {
	return j.Status == ReportStatusFinished && j.ResultPath != nil && *j.ResultPath != ""
}

// ReportJobParams are the filters a report was requested with.
type ReportJobParams struct {
	Format    ReportFormat `json:"format"`
	GroupName string       `json:"groupName,omitempty"`
	From      *time.Time   `json:"from,omitempty"`
	To        *time.Time   `json:"to,omitempty"`
}

// ReportRequest is the payload for scheduling an export.
type ReportRequest struct {
	Type      ReportType   `json:"type" validate:"required,oneof=attendance payments grades"`
	Format    ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	GroupName string       `json:"groupName" validate:"max=120"`
	From      *time.Time   `json:"from"`
	To        *time.Time   `json:"to"`
}

// ReportStatusResponse describes a job for polling clients.
type ReportStatusResponse struct {
	ID          string       `json:"id"`
	Type        ReportType   `json:"type"`
	Status      ReportStatus `json:"status"`
	Progress    int          `json:"progress"`
	DownloadURL *string      `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner for the JSONB column.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan report params: unsupported type %T", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}

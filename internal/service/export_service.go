package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/export"
)

const (
	exportPageSize = 200
	exportMaxRows  = 10000
)

type attendanceExportSource interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type paymentExportSource interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
}

type gradeExportSource interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportSources groups the listings a report can be built from.
type ExportSources struct {
	Attendance attendanceExportSource
	Payments   paymentExportSource
	Grades     gradeExportSource
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	sources ExportSources
	storage exportStorage
	csv     csvRenderer
	pdf     pdfRenderer
	center  string
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sources ExportSources, storage exportStorage, centerName string, loc *time.Location, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sources: sources,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		center:  centerName,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate renders the job's dataset and stores it, returning the relative file path.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (string, error) {
	if job == nil {
		return "", fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return "", err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return "", err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return "", err
	}
	s.logger.Debug("report rendered", zap.String("job_id", job.ID), zap.Int("rows", len(dataset.Rows)), zap.Int("bytes", len(payload)))
	return relPath, nil
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	stamp := s.now().In(s.loc).Format("20060102-150405")
	name := fmt.Sprintf("%s-%s-%s", job.Type, stamp, job.ID)
	if job.Params.GroupName != "" {
		name = fmt.Sprintf("%s-%s-%s-%s", job.Type, sanitizeFilename(job.Params.GroupName), stamp, job.ID)
	}
	return fmt.Sprintf("reports/%s.%s", name, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "group"
	}
	return b.String()
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	case models.ReportTypePayments:
		return s.buildPaymentDataset(ctx, job.Params)
	case models.ReportTypeGrades:
		return s.buildGradeDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	if s.sources.Attendance == nil {
		return export.Dataset{}, "", fmt.Errorf("attendance source not configured")
	}
	dataset := export.Dataset{Headers: []string{"Date", "Time", "Student", "Status", "Lesson"}}
	for page := 1; ; page++ {
		records, total, err := s.sources.Attendance.List(ctx, models.AttendanceFilter{From: params.From, To: params.To, Page: page, PageSize: exportPageSize})
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, rec := range records {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Date":    rec.Date.Format("2006-01-02"),
				"Time":    rec.Time,
				"Student": rec.StudentName,
				"Status":  string(rec.Status),
				"Lesson":  strconv.Itoa(rec.LessonNumber),
			})
		}
		if lastExportPage(len(dataset.Rows), total, len(records)) {
			break
		}
	}
	return dataset, s.title("Attendance", params), nil
}

func (s *ExportService) buildPaymentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	if s.sources.Payments == nil {
		return export.Dataset{}, "", fmt.Errorf("payment source not configured")
	}
	dataset := export.Dataset{Headers: []string{"Code", "Student", "Group", "Current Month", "Paid Months"}}
	for page := 1; ; page++ {
		payments, total, err := s.sources.Payments.List(ctx, models.PaymentFilter{GroupName: params.GroupName, Page: page, PageSize: exportPageSize})
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, p := range payments {
			months := make([]string, 0, len(p.PaidMonths))
			for _, m := range p.PaidMonths {
				months = append(months, m.Month)
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Code":          p.StudentCode,
				"Student":       p.StudentName,
				"Group":         p.GroupName,
				"Current Month": p.CurrentMonth,
				"Paid Months":   strings.Join(months, ", "),
			})
		}
		if lastExportPage(len(dataset.Rows), total, len(payments)) {
			break
		}
	}
	return dataset, s.title("Payments", params), nil
}

func (s *ExportService) buildGradeDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	if s.sources.Grades == nil {
		return export.Dataset{}, "", fmt.Errorf("grade source not configured")
	}
	dataset := export.Dataset{Headers: []string{"Date", "Student", "Group", "Exam", "Score", "Lesson", "Performance"}}
	for page := 1; ; page++ {
		grades, total, err := s.sources.Grades.List(ctx, models.GradeFilter{GroupName: params.GroupName, Page: page, PageSize: exportPageSize})
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, g := range grades {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Date":        g.Date.Format("2006-01-02"),
				"Student":     g.StudentName,
				"Group":       g.GroupName,
				"Exam":        g.ExamName,
				"Score":       fmt.Sprintf("%s/%s", formatScore(g.Score), formatScore(g.TotalScore)),
				"Lesson":      strconv.Itoa(g.LessonNumber),
				"Performance": string(g.Performance),
			})
		}
		if lastExportPage(len(dataset.Rows), total, len(grades)) {
			break
		}
	}
	return dataset, s.title("Grades", params), nil
}

func (s *ExportService) title(kind string, params models.ReportJobParams) string {
	parts := []string{kind + " report"}
	if s.center != "" {
		parts = append([]string{s.center}, parts...)
	}
	if params.GroupName != "" {
		parts = append(parts, params.GroupName)
	}
	if params.From != nil || params.To != nil {
		parts = append(parts, fmt.Sprintf("%s to %s", formatReportDate(params.From), formatReportDate(params.To)))
	}
	return strings.Join(parts, " - ")
}

func lastExportPage(collected, total, pageLen int) bool {
	return pageLen == 0 || collected >= total || collected >= exportMaxRows
}

func formatReportDate(t *time.Time) string {
	if t == nil {
		return "..."
	}
	return t.Format("2006-01-02")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

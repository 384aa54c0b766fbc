package models

import "time"

// Performance is the band derived from score over total score.
type Performance string

const (
	PerformanceExcellent        Performance = "excellent"
	PerformanceVeryGood         Performance = "very-good"
	PerformanceGood             Performance = "good"
	PerformanceFair             Performance = "fair"
	PerformanceNeedsImprovement Performance = "needs-improvement"
)

// PerformanceFor maps a score to its band. A non-positive total yields
// needs-improvement.
func PerformanceFor(score, total float64) Performance {
	if total <= 0 {
		return PerformanceNeedsImprovement
	}
	pct := score * 100 / total
	switch {
	case pct >= 90:
		return PerformanceExcellent
	case pct >= 80:
		return PerformanceVeryGood
	case pct >= 70:
		return PerformanceGood
	case pct >= 60:
		return PerformanceFair
	default:
		return PerformanceNeedsImprovement
	}
}

// Grade is an exam result. Performance is derived and recomputed on every write.
type Grade struct {
	ID           string      `db:"id" json:"id"`
	StudentID    string      `db:"student_id" json:"studentId"`
	StudentName  string      `db:"student_name" json:"studentName,omitempty"`
	ExamName     string      `db:"exam_name" json:"examName"`
	Score        float64     `db:"score" json:"score"`
	TotalScore   float64     `db:"total_score" json:"totalScore"`
	LessonNumber int         `db:"lesson_number" json:"lessonNumber"`
	GroupName    string      `db:"group_name" json:"groupName"`
	Date         time.Time   `db:"date" json:"date"`
	Performance  Performance `db:"performance" json:"performance"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

// GradeFilter narrows grade listings.
type GradeFilter struct {
	StudentID string
	GroupName string
	ExamName  string
	Page      int
	PageSize  int
}

// GradeRequest creates or updates a grade. Performance is not accepted from clients.
type GradeRequest struct {
	StudentID    string     `json:"studentId" validate:"required"`
	ExamName     string     `json:"examName" validate:"required,max=120"`
	Score        float64    `json:"score" validate:"gte=0"`
	TotalScore   float64    `json:"totalScore" validate:"gt=0"`
	LessonNumber int        `json:"lessonNumber" validate:"gte=1,lte=8"`
	GroupName    string     `json:"groupName" validate:"max=60"`
	Date         *time.Time `json:"date"`
}

package models

import "time"

// Payment is the single per-student payment record. Student fields and the current
// month are denormalized from the latest submission.
type Payment struct {
	ID               string      `db:"id" json:"id"`
	StudentID        string      `db:"student_id" json:"studentId"`
	StudentName      string      `db:"student_name" json:"studentName"`
	StudentCode      string      `db:"student_code" json:"studentCode"`
	GroupName        string      `db:"group_name" json:"groupName"`
	CurrentMonth     string      `db:"current_month" json:"currentMonth"`
	CurrentMonthDate time.Time   `db:"current_month_date" json:"currentMonthDate"`
	CreatedAt        time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updatedAt"`
	PaidMonths       []PaidMonth `db:"-" json:"paidMonths"`
}

// PaidMonth is one settled billing cycle. Month is a free-text label compared by
// exact match.
type PaidMonth struct {
	ID        string    `db:"id" json:"id"`
	PaymentID string    `db:"payment_id" json:"paymentId"`
	Month     string    `db:"month" json:"month"`
	PaidAt    time.Time `db:"paid_at" json:"paidAt"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Search    string
	GroupName string
	Page      int
	PageSize  int
}

// RecordPaymentRequest registers a paid month for a student.
type RecordPaymentRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName"`
	StudentCode string `json:"studentCode"`
	GroupName   string `json:"groupName"`
	Month       string `json:"month" validate:"required,max=64"`
}

// PaymentSummary is returned after a month is recorded.
type PaymentSummary struct {
	Payment        *Payment `json:"payment"`
	Month          string   `json:"month"`
	PaidMonthCount int      `json:"paidMonthCount"`
	Created        bool     `json:"created"`
}

// PaymentCoverage compares settled months with lessons attended so far.
type PaymentCoverage struct {
	StudentID         string `json:"studentId"`
	PaidMonths        int    `json:"paidMonths"`
	LessonsAttended   int    `json:"lessonsAttended"`
	RequiredMonths    int    `json:"requiredMonths"`
	CoveredThrough    int    `json:"coveredThroughLesson"`
	NextLessonPaid    bool   `json:"nextLessonPaid"`
}

// ResetConfirmation is the first step of the bulk payment wipe.
type ResetConfirmation struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

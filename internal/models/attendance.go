package models

import "time"

// AttendanceStatus is the outcome recorded for a lesson.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	return s == AttendancePresent || s == AttendanceAbsent
}

// AttendanceTimeLayout is the wall-clock format stored in AttendanceRecord.Time.
const AttendanceTimeLayout = "15:04:05"

// AttendanceRecord is one attendance row. LessonNumber is the position inside the
// current 8-lesson cycle. StudentName is copied at write time and never re-synced.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"studentId"`
	StudentName  string           `db:"student_name" json:"studentName"`
	Status       AttendanceStatus `db:"status" json:"status"`
	LessonNumber int              `db:"lesson_number" json:"lessonNumber"`
	Time         string           `db:"time" json:"time"`
	Date         time.Time        `db:"date" json:"date"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}

// AttendanceFilter narrows attendance listings.
type AttendanceFilter struct {
	StudentID string
	Status    AttendanceStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// AttendanceOutcome is returned to the operator after a code is presented. Paid is
// advisory; the record is written either way.
type AttendanceOutcome struct {
	StudentID       string            `json:"studentId"`
	StudentName     string            `json:"studentName"`
	Paid            bool              `json:"paid"`
	LessonInCycle   int               `json:"lessonInCycle"`
	RawLessonNumber int               `json:"rawLessonNumber"`
	Status          AttendanceStatus  `json:"status"`
	Record          *AttendanceRecord `json:"record"`
}

// RecordAttendanceRequest is the manual code-entry payload.
type RecordAttendanceRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

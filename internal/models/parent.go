package models

import "time"

// Parent is a guardian account linked to one student.
type Parent struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"fullName"`
	Phone     string    `db:"phone" json:"phone"`
	StudentID string    `db:"student_id" json:"studentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CreateParentRequest registers a parent; the phone doubles as login username.
type CreateParentRequest struct {
	FullName  string `json:"fullName" validate:"required,min=2,max=120"`
	Phone     string `json:"phone" validate:"required,min=6,max=20"`
	StudentID string `json:"studentId" validate:"required"`
	Password  string `json:"password" validate:"required,min=6"`
}

// ParentOverview is the read-only view of a child offered to parents.
type ParentOverview struct {
	Parent     Parent             `json:"parent"`
	Student    Student            `json:"student"`
	Attendance []AttendanceRecord `json:"recentAttendance"`
	Grades     []Grade            `json:"recentGrades"`
	Coverage   PaymentCoverage    `json:"coverage"`
}

package models

import "time"

// GradeLevel enumerates the three secondary-school years served by the center.
type GradeLevel string

const (
	GradeFirstSecondary  GradeLevel = "FIRST_SECONDARY"
	GradeSecondSecondary GradeLevel = "SECOND_SECONDARY"
	GradeThirdSecondary  GradeLevel = "THIRD_SECONDARY"
)

// Valid reports whether g is one of the known grade levels.
func (g GradeLevel) Valid() bool {
	switch g {
	case GradeFirstSecondary, GradeSecondSecondary, GradeThirdSecondary:
		return true
	}
	return false
}

// StudentCodeLength is the number of digits in an issued student code.
const StudentCodeLength = 6

// Student represents a learner registered with the center. Code is issued once on
// creation and never changes.
type Student struct {
	ID          string     `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"fullName"`
	Code        string     `db:"code" json:"code"`
	GradeLevel  GradeLevel `db:"grade_level" json:"gradeLevel"`
	GroupName   string     `db:"group_name" json:"groupName"`
	ParentPhone string     `db:"parent_phone" json:"parentPhone"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	GradeLevel GradeLevel
	GroupName  string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CreateStudentRequest is the admin payload for registering a student. Password seeds
// the student's login account; the username is the issued code.
type CreateStudentRequest struct {
	FullName    string     `json:"fullName" validate:"required,min=2,max=120"`
	GradeLevel  GradeLevel `json:"gradeLevel" validate:"required,grade_level"`
	GroupName   string     `json:"groupName" validate:"required,max=60"`
	ParentPhone string     `json:"parentPhone" validate:"omitempty,max=20"`
	Password    string     `json:"password" validate:"required,min=6"`
}

// UpdateStudentRequest edits mutable student fields. The code is not editable.
type UpdateStudentRequest struct {
	FullName    string     `json:"fullName" validate:"required,min=2,max=120"`
	GradeLevel  GradeLevel `json:"gradeLevel" validate:"required,grade_level"`
	GroupName   string     `json:"groupName" validate:"required,max=60"`
	ParentPhone string     `json:"parentPhone" validate:"omitempty,max=20"`
}

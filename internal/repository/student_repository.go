package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
)

const studentColumns = "id, full_name, code, grade_level, group_name, parent_phone, created_at, updated_at"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	gw *database.Gateway
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(gw *database.Gateway) *StudentRepository {
	return &StudentRepository{gw: gw}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.GroupName != "" {
		conditions = append(conditions, fmt.Sprintf("group_name = $%d", len(args)+1))
		args = append(args, filter.GroupName)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR code LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := "FROM students WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"code":       "code",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, where, column, order, size, offset)
	var students []models.Student
	if err := r.gw.DB().SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.gw.DB().GetContext(ctx, &total, "SELECT COUNT(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID. Returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	var student models.Student
	if err := r.gw.DB().GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByCode fetches a student by exact code match. Returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE code = $1"
	var student models.Student
	if err := r.gw.DB().GetContext(ctx, &student, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by code: %w", err)
	}
	return &student, nil
}

// CodeExists checks whether a code has already been issued.
func (r *StudentRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists int
	if err := r.gw.DB().GetContext(ctx, &exists, "SELECT 1 FROM students WHERE code = $1 LIMIT 1", code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check code: %w", err)
	}
	return true, nil
}

// CreateWithAccount inserts the student and its login account in one transaction.
// A code collision returns ErrDuplicateKey so the caller can issue another code.
func (r *StudentRepository) CreateWithAccount(ctx context.Context, student *models.Student, account *models.User) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	return r.gw.WithTx(ctx, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO students (id, full_name, code, grade_level, group_name, parent_phone, created_at, updated_at)
        VALUES (:id, :full_name, :code, :grade_level, :group_name, :parent_phone, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create student: %w", ErrDuplicateKey)
			}
			return fmt.Errorf("create student: %w", err)
		}
		if account == nil {
			return nil
		}
		account.StudentID = &student.ID
		return insertUser(ctx, tx, account)
	})
}

// Update modifies the editable fields of a student. The code column is never written.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, grade_level = :grade_level, group_name = :group_name,
        parent_phone = :parent_phone, updated_at = :updated_at WHERE id = :id`
	res, err := r.gw.DB().NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return expectAffected(res, "update student")
}

// Delete removes a student; attendance, grades, payments and accounts cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(res, "delete student")
}

// CountAttendance returns the number of attendance rows recorded for the student.
func (r *StudentRepository) CountAttendance(ctx context.Context, studentID string) (int, error) {
	var count int
	if err := r.gw.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM attendance WHERE student_id = $1", studentID); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

// CountByGrade returns the number of students per grade level.
func (r *StudentRepository) CountByGrade(ctx context.Context) (map[models.GradeLevel]int, error) {
	var rows []struct {
		GradeLevel models.GradeLevel `db:"grade_level"`
		Total      int               `db:"total"`
	}
	const query = `SELECT grade_level, COUNT(*) AS total FROM students GROUP BY grade_level`
	if err := r.gw.DB().SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count students by grade: %w", err)
	}
	counts := make(map[models.GradeLevel]int, len(rows))
	for _, row := range rows {
		counts[row.GradeLevel] = row.Total
	}
	return counts, nil
}

func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

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

const gradeSelect = `SELECT g.id, g.student_id, s.full_name AS student_name, g.exam_name, g.score, g.total_score,
        g.lesson_number, g.group_name, g.date, g.performance, g.created_at, g.updated_at
        FROM grades g JOIN students s ON s.id = g.student_id`

// GradeRepository persists exam results.
type GradeRepository struct {
	gw *database.Gateway
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(gw *database.Gateway) *GradeRepository {
	return &GradeRepository{gw: gw}
}

// List returns grades matching the filter, newest exam first.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.GroupName != "" {
		conditions = append(conditions, fmt.Sprintf("g.group_name = $%d", len(args)+1))
		args = append(args, filter.GroupName)
	}
	if filter.ExamName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(g.exam_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.ExamName)+"%")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY g.date DESC, g.created_at DESC LIMIT %d OFFSET %d", gradeSelect, where, size, offset)
	var grades []models.Grade
	if err := r.gw.DB().SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}
	var total int
	if err := r.gw.DB().GetContext(ctx, &total, "SELECT COUNT(*) FROM grades g"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade. Returns sql.ErrNoRows when absent.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	var grade models.Grade
	if err := r.gw.DB().GetContext(ctx, &grade, gradeSelect+" WHERE g.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// Create inserts a grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, exam_name, score, total_score, lesson_number, group_name, date, performance, created_at, updated_at)
        VALUES (:id, :student_id, :exam_name, :score, :total_score, :lesson_number, :group_name, :date, :performance, :created_at, :updated_at)`
	if _, err := r.gw.DB().NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update rewrites a grade including its recomputed performance band.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET student_id = :student_id, exam_name = :exam_name, score = :score, total_score = :total_score,
        lesson_number = :lesson_number, group_name = :group_name, date = :date, performance = :performance, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.gw.DB().NamedExecContext(ctx, query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return expectAffected(res, "update grade")
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM grades WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return expectAffected(res, "delete grade")
}

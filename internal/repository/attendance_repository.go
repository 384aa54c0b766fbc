package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
)

const attendanceColumns = "id, student_id, student_name, status, lesson_number, time, date, created_at"

// AttendanceRepository persists attendance rows.
type AttendanceRepository struct {
	gw *database.Gateway
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(gw *database.Gateway) *AttendanceRepository {
	return &AttendanceRepository{gw: gw}
}

// CreateSequenced inserts rec inside a transaction that holds the student's row lock.
// assign receives the number of rows recorded before this one and the student's paid
// month count, both read on the transaction, and must fill in the lesson number;
// concurrent calls for the same student are serialized by the lock so no two rows are
// numbered from the same count. Returns sql.ErrNoRows when the student no longer exists.
func (r *AttendanceRepository) CreateSequenced(ctx context.Context, rec *models.AttendanceRecord, assign func(prior, paidMonths int) error) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return r.gw.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, "SELECT id FROM students WHERE id = $1 FOR UPDATE", rec.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock student: %w", err)
		}
		var prior int
		if err := tx.GetContext(ctx, &prior, "SELECT COUNT(*) FROM attendance WHERE student_id = $1", rec.StudentID); err != nil {
			return fmt.Errorf("count attendance: %w", err)
		}
		var paid int
		if err := tx.GetContext(ctx, &paid, studentPaidMonthsQuery, rec.StudentID); err != nil {
			return fmt.Errorf("count paid months: %w", err)
		}
		if err := assign(prior, paid); err != nil {
			return err
		}
		const query = `INSERT INTO attendance (id, student_id, student_name, status, lesson_number, time, date, created_at)
        VALUES (:id, :student_id, :student_name, :status, :lesson_number, :time, :date, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("create attendance: %w", err)
		}
		return nil
	})
}

// List returns attendance rows matching the filter, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	where := "FROM attendance WHERE " + strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", attendanceColumns, where, size, offset)
	var records []models.AttendanceRecord
	if err := r.gw.DB().SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	var total int
	if err := r.gw.DB().GetContext(ctx, &total, "SELECT COUNT(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// ListByStudent returns the most recent rows for one student.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + attendanceColumns + " FROM attendance WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2"
	var records []models.AttendanceRecord
	if err := r.gw.DB().SelectContext(ctx, &records, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}

// Delete removes one attendance row.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return expectAffected(res, "delete attendance")
}

// CountForDate returns present and absent totals recorded on the given day.
func (r *AttendanceRepository) CountForDate(ctx context.Context, day time.Time) (int, int, error) {
	var counts struct {
		Present int `db:"present"`
		Absent  int `db:"absent"`
	}
	const query = `SELECT COUNT(*) FILTER (WHERE status = 'present') AS present,
        COUNT(*) FILTER (WHERE status = 'absent') AS absent
        FROM attendance WHERE date = $1`
	if err := r.gw.DB().GetContext(ctx, &counts, query, day.Format("2006-01-02")); err != nil {
		return 0, 0, fmt.Errorf("count attendance for date: %w", err)
	}
	return counts.Present, counts.Absent, nil
}

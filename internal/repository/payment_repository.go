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

const paymentColumns = "id, student_id, student_name, student_code, group_name, current_month, current_month_date, created_at, updated_at"

const studentPaidMonthsQuery = `SELECT COUNT(pm.id) FROM paid_months pm
        JOIN payments p ON p.id = pm.payment_id WHERE p.student_id = $1`

// PaymentRepository persists payments and their paid months.
type PaymentRepository struct {
	gw *database.Gateway
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(gw *database.Gateway) *PaymentRepository {
	return &PaymentRepository{gw: gw}
}

// RecordMonthResult reports what RecordMonth changed.
type RecordMonthResult struct {
	PaymentID  string
	Created    bool
	PaidMonths int
}

// RecordMonth appends month to the student's payment, creating the payment on first
// use. The whole operation runs in one transaction holding the payment row lock, and
// the (payment_id, month) unique constraint rejects a label that is already present
// with ErrDuplicateMonth.
func (r *PaymentRepository) RecordMonth(ctx context.Context, payment *models.Payment, month string, paidAt time.Time) (*RecordMonthResult, error) {
	paidAt = paidAt.UTC()
	result := &RecordMonthResult{}
	err := r.gw.WithTx(ctx, func(tx *sqlx.Tx) error {
		const upsert = `INSERT INTO payments (id, student_id, student_name, student_code, group_name, current_month, current_month_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7) ON CONFLICT (student_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, upsert, uuid.NewString(), payment.StudentID, payment.StudentName, payment.StudentCode, payment.GroupName, month, paidAt)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 1 {
			result.Created = true
		}

		if err := tx.GetContext(ctx, &result.PaymentID, "SELECT id FROM payments WHERE student_id = $1 FOR UPDATE", payment.StudentID); err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		const insertMonth = "INSERT INTO paid_months (id, payment_id, month, paid_at) VALUES ($1, $2, $3, $4)"
		if _, err := tx.ExecContext(ctx, insertMonth, uuid.NewString(), result.PaymentID, month, paidAt); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMonth
			}
			return fmt.Errorf("create paid month: %w", err)
		}

		const touch = `UPDATE payments SET student_name = $2, student_code = $3, group_name = $4, current_month = $5,
        current_month_date = $6, updated_at = $6 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, touch, result.PaymentID, payment.StudentName, payment.StudentCode, payment.GroupName, month, paidAt); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		if err := tx.GetContext(ctx, &result.PaidMonths, "SELECT COUNT(*) FROM paid_months WHERE payment_id = $1", result.PaymentID); err != nil {
			return fmt.Errorf("count paid months: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PaidMonthCount returns the number of paid months for a student and whether a
// payment row exists at all.
func (r *PaymentRepository) PaidMonthCount(ctx context.Context, studentID string) (int, bool, error) {
	var row struct {
		ID    string `db:"id"`
		Count int    `db:"paid"`
	}
	const query = `SELECT p.id, COUNT(pm.id) AS paid FROM payments p
        LEFT JOIN paid_months pm ON pm.payment_id = p.id
        WHERE p.student_id = $1 GROUP BY p.id`
	if err := r.gw.DB().GetContext(ctx, &row, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("count paid months: %w", err)
	}
	return row.Count, true, nil
}

// FindByStudent returns the student's payment with its months. Returns sql.ErrNoRows
// when the student has never paid.
func (r *PaymentRepository) FindByStudent(ctx context.Context, studentID string) (*models.Payment, error) {
	var payment models.Payment
	query := "SELECT " + paymentColumns + " FROM payments WHERE student_id = $1"
	if err := r.gw.DB().GetContext(ctx, &payment, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	payments := []models.Payment{payment}
	if err := r.attachMonths(ctx, payments); err != nil {
		return nil, err
	}
	return &payments[0], nil
}

// List returns payments with their months, most recently updated first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.GroupName != "" {
		conditions = append(conditions, fmt.Sprintf("group_name = $%d", len(args)+1))
		args = append(args, filter.GroupName)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR student_code LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := "FROM payments WHERE " + strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", paymentColumns, where, size, offset)
	var payments []models.Payment
	if err := r.gw.DB().SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := r.gw.DB().GetContext(ctx, &total, "SELECT COUNT(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	if err := r.attachMonths(ctx, payments); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// Delete removes a payment; its paid months cascade.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM payments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return expectAffected(res, "delete payment")
}

// DeleteAll wipes every payment and paid month, returning the number of payments removed.
func (r *PaymentRepository) DeleteAll(ctx context.Context) (int64, error) {
	var removed int64
	err := r.gw.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM paid_months"); err != nil {
			return fmt.Errorf("delete paid months: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM payments")
		if err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		return nil
	})
	return removed, err
}

// Stats returns the total number of paid months and the number of students without
// any payment.
func (r *PaymentRepository) Stats(ctx context.Context) (int, int, error) {
	var stats struct {
		PaidMonths int `db:"paid_months"`
		Unpaid     int `db:"unpaid"`
	}
	const query = `SELECT (SELECT COUNT(*) FROM paid_months) AS paid_months,
        (SELECT COUNT(*) FROM students s WHERE NOT EXISTS (SELECT 1 FROM payments p WHERE p.student_id = s.id)) AS unpaid`
	if err := r.gw.DB().GetContext(ctx, &stats, query); err != nil {
		return 0, 0, fmt.Errorf("payment stats: %w", err)
	}
	return stats.PaidMonths, stats.Unpaid, nil
}

func (r *PaymentRepository) attachMonths(ctx context.Context, payments []models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	ids := make([]string, len(payments))
	index := make(map[string]int, len(payments))
	for i := range payments {
		ids[i] = payments[i].ID
		index[payments[i].ID] = i
		payments[i].PaidMonths = []models.PaidMonth{}
	}
	query, args, err := sqlx.In("SELECT id, payment_id, month, paid_at FROM paid_months WHERE payment_id IN (?) ORDER BY paid_at ASC", ids)
	if err != nil {
		return fmt.Errorf("build paid months query: %w", err)
	}
	db := r.gw.DB()
	var months []models.PaidMonth
	if err := db.SelectContext(ctx, &months, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list paid months: %w", err)
	}
	for _, m := range months {
		if i, ok := index[m.PaymentID]; ok {
			payments[i].PaidMonths = append(payments[i].PaidMonths, m)
		}
	}
	return nil
}

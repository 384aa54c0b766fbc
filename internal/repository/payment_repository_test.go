package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
)

const january = "يناير 2024"

func expectPaymentUpsert(mock sqlmock.Sqlmock, created bool) {
	affected := int64(0)
	if created {
		affected = 1
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "Mona Adel", "123456", "Sat 10am", january, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, affected))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM payments WHERE student_id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pay-1"))
}

func paymentInput() *models.Payment {
	return &models.Payment{StudentID: "stu-1", StudentName: "Mona Adel", StudentCode: "123456", GroupName: "Sat 10am"}
}

func TestPaymentRepositoryRecordMonthCreatesPayment(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)

	mock.ExpectBegin()
	expectPaymentUpsert(mock, true)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO paid_months")).
		WithArgs(sqlmock.AnyArg(), "pay-1", january, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET student_name = $2")).
		WithArgs("pay-1", "Mona Adel", "123456", "Sat 10am", january, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM paid_months WHERE payment_id = $1")).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	result, err := repo.RecordMonth(context.Background(), paymentInput(), january, time.Now())
	require.NoError(t, err)
	assert.Equal(t, &RecordMonthResult{PaymentID: "pay-1", Created: true, PaidMonths: 1}, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRecordMonthRejectsDuplicateLabel(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)

	mock.ExpectBegin()
	expectPaymentUpsert(mock, false)
	mock.ExpectExec(`^INSERT INTO paid_months \(id, payment_id, month, paid_at\) VALUES \(\$1, \$2, \$3, \$4\)$`).
		WithArgs(sqlmock.AnyArg(), "pay-1", january, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "paid_months_payment_id_month_key"})
	mock.ExpectRollback()

	result, err := repo.RecordMonth(context.Background(), paymentInput(), january, time.Now())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrDuplicateMonth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryPaidMonthCount(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT p.id, COUNT(pm.id) AS paid FROM payments p")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "paid"}).AddRow("pay-1", 3))
	count, exists, err := repo.PaidMonthCount(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, count)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT p.id, COUNT(pm.id) AS paid FROM payments p")).
		WithArgs("stu-2").
		WillReturnError(sql.ErrNoRows)
	count, exists, err = repo.PaidMonthCount(context.Background(), "stu-2")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByStudentAttachesMonths(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name, student_code, group_name, current_month, current_month_date, created_at, updated_at FROM payments WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "student_name", "student_code", "group_name", "current_month", "current_month_date", "created_at", "updated_at"}).
			AddRow("pay-1", "stu-1", "Mona Adel", "123456", "Sat 10am", "فبراير 2024", now, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, payment_id, month, paid_at FROM paid_months WHERE payment_id IN (?)")).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "payment_id", "month", "paid_at"}).
			AddRow("pm-1", "pay-1", january, now).
			AddRow("pm-2", "pay-1", "فبراير 2024", now))

	payment, err := repo.FindByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, payment.PaidMonths, 2)
	assert.Equal(t, january, payment.PaidMonths[0].Month)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteAll(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM paid_months")).WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payments")).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	removed, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteMissing(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewPaymentRepository(gw)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payments WHERE id = $1")).
		WithArgs("pay-x").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "pay-x"), sql.ErrNoRows)
}

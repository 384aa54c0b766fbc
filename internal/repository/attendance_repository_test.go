package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
)

func TestAttendanceRepositoryCreateSequencedLocksAndCounts(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(pm.id) FROM paid_months pm")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "Mona Adel", models.AttendancePresent, 8, "16:30:00", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.AttendanceRecord{StudentID: "stu-1", StudentName: "Mona Adel", Status: models.AttendancePresent, Time: "16:30:00", Date: time.Now()}
	var seenPrior, seenPaid int
	err := repo.CreateSequenced(context.Background(), rec, func(prior, paidMonths int) error {
		seenPrior, seenPaid = prior, paidMonths
		rec.LessonNumber = prior%8 + 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, seenPrior)
	assert.Equal(t, 1, seenPaid)
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSequencedMissingStudent(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	called := false
	err := repo.CreateSequenced(context.Background(), &models.AttendanceRecord{StudentID: "gone"}, func(int, int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSequencedAssignFailureRollsBack(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE student_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(pm.id) FROM paid_months pm")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	failure := errors.New("lesson numbering failed")
	err := repo.CreateSequenced(context.Background(), &models.AttendanceRecord{StudentID: "stu-1"}, func(int, int) error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSequencedPaidMonthFailureRollsBack(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE student_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(pm.id) FROM paid_months pm")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	called := false
	err := repo.CreateSequenced(context.Background(), &models.AttendanceRecord{StudentID: "stu-1"}, func(int, int) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count paid months")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSequencedFitsSingleConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	repo := NewAttendanceRepository(database.NewGatewayFromDB(sqlx.NewDb(db, "sqlmock")))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE student_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(pm.id) FROM paid_months pm")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := &models.AttendanceRecord{StudentID: "stu-1", Status: models.AttendancePresent, Date: time.Now()}
	err = repo.CreateSequenced(ctx, rec, func(prior, paidMonths int) error {
		rec.LessonNumber = prior%8 + 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LessonNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountForDate(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FILTER (WHERE status = 'present') AS present")).
		WithArgs("2024-01-15").
		WillReturnRows(sqlmock.NewRows([]string{"present", "absent"}).AddRow(12, 3))

	present, absent, err := repo.CountForDate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 12, present)
	assert.Equal(t, 3, absent)
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	gw, mock := newMockGateway(t)
	repo := NewAttendanceRepository(gw)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name, status, lesson_number, time, date, created_at FROM attendance WHERE 1=1 AND student_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", models.AttendanceAbsent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "student_name", "status", "lesson_number", "time", "date", "created_at"}).
			AddRow("att-1", "stu-1", "Mona Adel", "absent", 3, "17:00:00", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE 1=1 AND student_id = $1 AND status = $2")).
		WithArgs("stu-1", models.AttendanceAbsent).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{StudentID: "stu-1", Status: models.AttendanceAbsent})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 3, records[0].LessonNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

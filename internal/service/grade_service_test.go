package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type mockGradeRepo struct {
	storedGrades map[string]models.Grade
	updates      int
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	var result []models.Grade
	for _, g := range m.storedGrades {
		if filter.StudentID != "" && filter.StudentID != g.StudentID {
			continue
		}
		result = append(result, g)
	}
	return result, len(result), nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	g, ok := m.storedGrades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if m.storedGrades == nil {
		m.storedGrades = make(map[string]models.Grade)
	}
	grade.ID = "grade-1"
	m.storedGrades[grade.ID] = *grade
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	m.updates++
	m.storedGrades[grade.ID] = *grade
	return nil
}

func (m *mockGradeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.storedGrades[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.storedGrades, id)
	return nil
}

func newGradeFixture() (*GradeService, *mockGradeRepo) {
	repo := &mockGradeRepo{}
	students := &fakeStudentDirectory{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Mona Adel", GroupName: "Sat 10am"},
	}}
	svc := NewGradeService(repo, students, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestGradeServiceCreateDerivesPerformance(t *testing.T) {
	svc, repo := newGradeFixture()

	grade, err := svc.Create(context.Background(), models.GradeRequest{
		StudentID:    "stu-1",
		ExamName:     " Unit 1 ",
		Score:        17,
		TotalScore:   20,
		LessonNumber: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PerformanceVeryGood, grade.Performance)
	assert.Equal(t, "Unit 1", grade.ExamName)
	assert.Equal(t, "Sat 10am", grade.GroupName)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), grade.Date)
	assert.Equal(t, "Mona Adel", repo.storedGrades["grade-1"].StudentName)
}

func TestGradeServiceUpdateRecomputesPerformance(t *testing.T) {
	svc, repo := newGradeFixture()
	ctx := context.Background()
	grade, err := svc.Create(ctx, models.GradeRequest{StudentID: "stu-1", ExamName: "Quiz", Score: 19, TotalScore: 20, LessonNumber: 1})
	require.NoError(t, err)
	require.Equal(t, models.PerformanceExcellent, grade.Performance)

	updated, err := svc.Update(ctx, grade.ID, models.GradeRequest{StudentID: "stu-1", ExamName: "Quiz", Score: 11, TotalScore: 20, LessonNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, models.PerformanceNeedsImprovement, updated.Performance)
	assert.Equal(t, grade.Date, updated.Date)
	assert.Equal(t, 1, repo.updates)
}

func TestGradeServiceRejectsScoreAboveTotal(t *testing.T) {
	svc, _ := newGradeFixture()

	_, err := svc.Create(context.Background(), models.GradeRequest{StudentID: "stu-1", ExamName: "Quiz", Score: 21, TotalScore: 20, LessonNumber: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), models.GradeRequest{StudentID: "stu-1", ExamName: "Quiz", Score: 5, TotalScore: 20, LessonNumber: 9})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestGradeServiceUnknownStudent(t *testing.T) {
	svc, _ := newGradeFixture()

	_, err := svc.Create(context.Background(), models.GradeRequest{StudentID: "ghost", ExamName: "Quiz", Score: 5, TotalScore: 20, LessonNumber: 1})
	assert.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}

func TestGradeServiceUpdateAndDeleteMissing(t *testing.T) {
	svc, _ := newGradeFixture()
	ctx := context.Background()

	_, err := svc.Update(ctx, "nope", models.GradeRequest{StudentID: "stu-1", ExamName: "Quiz", Score: 5, TotalScore: 20, LessonNumber: 1})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), appErrors.ErrNotFound)
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

type studentCounter interface {
	CountByGrade(ctx context.Context) (map[models.GradeLevel]int, error)
}

type dailyAttendanceCounter interface {
	CountForDate(ctx context.Context, day time.Time) (int, int, error)
}

type paymentStats interface {
	Stats(ctx context.Context) (int, int, error)
}

type mediaCounter interface {
	Counts(ctx context.Context) (int, int, error)
}

// DashboardService aggregates the admin home-screen counters.
type DashboardService struct {
	students   studentCounter
	attendance dailyAttendanceCounter
	payments   paymentStats
	media      mediaCounter
	cache      *CacheService
	cacheTTL   time.Duration
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

// NewDashboardService constructs the dashboard aggregator.
func NewDashboardService(students studentCounter, attendance dailyAttendanceCounter, payments paymentStats, media mediaCounter, cache *CacheService, cacheTTL time.Duration, loc *time.Location, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		students:   students,
		attendance: attendance,
		payments:   payments,
		media:      media,
		cache:      cache,
		cacheTTL:   cacheTTL,
		location:   loc,
		logger:     logger,
		now:        time.Now,
	}
}

// Summary returns the dashboard counters and whether they came from the cache.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, bool, error) {
	return readThrough(ctx, s.cache, cacheKeyDashboard, s.cacheTTL, s.build)
}

func (s *DashboardService) build(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.now().In(s.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	summary := &models.DashboardSummary{GeneratedAt: now.UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byGrade, err := s.students.CountByGrade(gctx)
		if err != nil {
			return fmt.Errorf("students: %w", err)
		}
		summary.StudentsByGrade = byGrade
		for _, n := range byGrade {
			summary.TotalStudents += n
		}
		return nil
	})
	g.Go(func() error {
		present, absent, err := s.attendance.CountForDate(gctx, today)
		if err != nil {
			return fmt.Errorf("attendance: %w", err)
		}
		summary.PresentToday, summary.AbsentToday = present, absent
		return nil
	})
	g.Go(func() error {
		paid, unpaid, err := s.payments.Stats(gctx)
		if err != nil {
			return fmt.Errorf("payments: %w", err)
		}
		summary.TotalPaidMonths, summary.StudentsWithoutPay = paid, unpaid
		return nil
	})
	g.Go(func() error {
		videos, books, err := s.media.Counts(gctx)
		if err != nil {
			return fmt.Errorf("media: %w", err)
		}
		summary.Videos, summary.Books = videos, books
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Persistence(err, "failed to build dashboard")
	}
	return summary, nil
}

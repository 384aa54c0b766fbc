// Package lessoncycle maps attendance counts onto 8-lesson billing cycles.
//
// Two lesson numbers exist. The raw number is the student's total attendance count
// including the current lesson; it never resets and drives payment coverage. The
// in-cycle number is the raw number folded into 1..8; it is what gets stored on the
// attendance row and shown to operators.
package lessoncycle

import (
	"fmt"

	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

// LessonsPerCycle is the number of lessons covered by one paid month.
const LessonsPerCycle = 8

// Position describes where a raw lesson number falls in the billing calendar.
type Position struct {
	RawLessonNumber int `json:"rawLessonNumber"`
	LessonInCycle   int `json:"lessonInCycle"`
	Cycle           int `json:"cycle"`
	FirstLesson     int `json:"firstLesson"`
	LastLesson      int `json:"lastLesson"`
}

// LessonInCycle returns the in-cycle number of the lesson that follows totalBefore
// recorded lessons.
func LessonInCycle(totalBefore int) (int, error) {
	if totalBefore < 0 {
		return 0, invalid("lesson count must not be negative, got %d", totalBefore)
	}
	return totalBefore%LessonsPerCycle + 1, nil
}

// RequiredPaidMonths returns how many paid months cover the raw lesson number.
func RequiredPaidMonths(raw int) (int, error) {
	if raw <= 0 {
		return 0, invalid("raw lesson number must be positive, got %d", raw)
	}
	return (raw + LessonsPerCycle - 1) / LessonsPerCycle, nil
}

// FirstLessonOfCurrentMonth returns the first raw lesson number of raw's cycle.
func FirstLessonOfCurrentMonth(raw int) (int, error) {
	months, err := RequiredPaidMonths(raw)
	if err != nil {
		return 0, err
	}
	return (months-1)*LessonsPerCycle + 1, nil
}

// LastLessonOfCurrentMonth returns the last raw lesson number of raw's cycle.
func LastLessonOfCurrentMonth(raw int) (int, error) {
	months, err := RequiredPaidMonths(raw)
	if err != nil {
		return 0, err
	}
	return months * LessonsPerCycle, nil
}

// Locate bundles every derived value for a raw lesson number.
func Locate(raw int) (Position, error) {
	cycle, err := RequiredPaidMonths(raw)
	if err != nil {
		return Position{}, err
	}
	inCycle, err := LessonInCycle(raw - 1)
	if err != nil {
		return Position{}, err
	}
	return Position{
		RawLessonNumber: raw,
		LessonInCycle:   inCycle,
		Cycle:           cycle,
		FirstLesson:     (cycle-1)*LessonsPerCycle + 1,
		LastLesson:      cycle * LessonsPerCycle,
	}, nil
}

// CoveredThrough returns the last raw lesson number paid for by paidMonths months.
func CoveredThrough(paidMonths int) int {
	if paidMonths < 0 {
		return 0
	}
	return paidMonths * LessonsPerCycle
}

// IsCovered reports whether paidMonths months cover the raw lesson number.
func IsCovered(paidMonths, raw int) (bool, error) {
	required, err := RequiredPaidMonths(raw)
	if err != nil {
		return false, err
	}
	return paidMonths >= required, nil
}

func invalid(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

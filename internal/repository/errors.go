package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateMonth is returned when a paid month label already exists for the payment.
var ErrDuplicateMonth = errors.New("paid month already recorded")

// ErrDuplicateKey is returned when an insert hits a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

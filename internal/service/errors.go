package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrNoCandidates      = errors.New("no_candidates")
	ErrCapacityExceeded  = errors.New("capacity_exceeded")
	ErrValidation        = errors.New("validation_error")
	ErrIneligible        = errors.New("ineligible")
	ErrDuplicateRating   = errors.New("duplicate_rating")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound maps a missing row to ErrNotFound and passes anything else through.
func notFound(err error, what string, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return err
}

func isStale(err error) bool {
	return errors.Is(err, repository.ErrStaleStatus)
}

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

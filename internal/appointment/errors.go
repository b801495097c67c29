package appointment

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the package wraps one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInactive        = errors.New("inactive")
	ErrUnauthorized    = errors.New("not allowed")
	ErrBookingConflict = errors.New("time slot overlaps an existing appointment")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidInput    = errors.New("invalid input")
)

var (
	ErrBusinessInactive = fmt.Errorf("business is %w", ErrInactive)
	ErrServiceInactive  = fmt.Errorf("service is %w", ErrInactive)

	ErrInvalidTransition = fmt.Errorf("%w transition", ErrInvalidStatus)

	ErrServiceMismatch      = fmt.Errorf("%w: service does not belong to business", ErrInvalidInput)
	ErrOutsideBusinessHours = fmt.Errorf("%w: requested time is outside business hours", ErrInvalidInput)
	ErrPastAppointment      = fmt.Errorf("%w: appointment is in the past", ErrInvalidInput)
	ErrInvalidDuration      = fmt.Errorf("%w: service duration must be positive", ErrInvalidInput)
	ErrInvalidRange         = fmt.Errorf("%w: date range", ErrInvalidInput)
)

/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the API layer maps them to
  HTTP statuses.

ERROR CATEGORIES:
  1. Validation errors - rejected window definitions, never retried
  2. Booking errors    - rejected reservations, naming the offending
                         service or resource
  3. Persistence errors - storage-level conflicts and failures

USAGE:
  if errors.Is(err, schedule.ErrBookingConflict) {
      // availability shifted underneath us; retry the whole reservation
  }

SEE ALSO:
  - validator.go: returns the validation errors
  - planner.go: returns the booking-time errors
  - store.go: Insert contract for ErrBookingConflict
*/
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Validation-time: rejected input, never retried.
	ErrInvalidRange        = errors.New("window start must be before end")
	ErrDurationOutOfBounds = errors.New("window duration out of bounds")
	ErrOutsideParentHours  = errors.New("owner is closed on that weekday")
	ErrExceedsParentStart  = errors.New("window starts before owner opens")
	ErrExceedsParentEnd    = errors.New("window ends after owner closes")
	ErrScheduleOverlap     = errors.New("window overlaps an existing window")

	// Booking-time: rejections naming the offending service/resource.
	ErrResourceUnavailable = errors.New("resource unavailable for requested interval")
	ErrNoResourceAvailable = errors.New("no capable resource available")
	ErrInThePast           = errors.New("booking start is not in the future")
	ErrTooSoon             = errors.New("booking start violates minimum advance notice")
	ErrTooFarAhead         = errors.New("booking start exceeds maximum advance window")

	// Persistence-time.
	ErrBookingConflict = errors.New("booking conflicts with an existing booking")
	ErrBookingFailed   = errors.New("booking could not be persisted")

	// Lifecycle and lookup failures.
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrServiceNotFound   = errors.New("service not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrOwnerNotFound     = errors.New("owner not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// WindowBoundsError reports a resource window exceeding its parent window.
type WindowBoundsError struct {
	Window TimeOfDay
	Parent TimeOfDay
	AtEnd  bool // false = starts too early, true = ends too late
}

func (e *WindowBoundsError) Error() string {
	if e.AtEnd {
		return fmt.Sprintf("window ends %s but owner closes %s", e.Window, e.Parent)
	}
	return fmt.Sprintf("window starts %s but owner opens %s", e.Window, e.Parent)
}

func (e *WindowBoundsError) Unwrap() error {
	if e.AtEnd {
		return ErrExceedsParentEnd
	}
	return ErrExceedsParentStart
}

// ScheduleOverlapError reports which sibling window a candidate collides with.
type ScheduleOverlapError struct {
	Weekday  time.Weekday
	Window   Interval
	Existing Interval
	WindowID string // the colliding sibling
}

func (e *ScheduleOverlapError) Error() string {
	return fmt.Sprintf("window %s overlaps existing window %s on %s",
		e.Window, e.Existing, e.Weekday)
}

func (e *ScheduleOverlapError) Unwrap() error { return ErrScheduleOverlap }

// ResourceUnavailableError names the service whose requested resource
// cannot take the sub-interval.
type ResourceUnavailableError struct {
	ServiceID  ServiceID
	ResourceID ResourceID
	Interval   Interval
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource %s unavailable for service %s at %s",
		e.ResourceID, e.ServiceID, e.Interval)
}

func (e *ResourceUnavailableError) Unwrap() error { return ErrResourceUnavailable }

// NoResourceAvailableError names the service for which auto-assignment
// exhausted every capable resource.
type NoResourceAvailableError struct {
	ServiceID ServiceID
	Interval  Interval
}

func (e *NoResourceAvailableError) Error() string {
	return fmt.Sprintf("no resource available for service %s at %s", e.ServiceID, e.Interval)
}

func (e *NoResourceAvailableError) Unwrap() error { return ErrNoResourceAvailable }

// TransitionError reports a rejected status transition.
type TransitionError struct {
	BookingID BookingID
	From      BookingStatus
	To        BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: cannot transition %s -> %s", e.BookingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on a wholesale retry,
// i.e. availability may have shifted underneath the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBookingConflict)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an engine or storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrDurationOutOfBounds) ||
		errors.Is(err, ErrOutsideParentHours) ||
		errors.Is(err, ErrExceedsParentStart) ||
		errors.Is(err, ErrExceedsParentEnd) ||
		errors.Is(err, ErrScheduleOverlap) ||
		errors.Is(err, ErrResourceUnavailable) ||
		errors.Is(err, ErrNoResourceAvailable) ||
		errors.Is(err, ErrInThePast) ||
		errors.Is(err, ErrTooSoon) ||
		errors.Is(err, ErrTooFarAhead) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrOwnerNotFound)
}

/*
store.go - Repository interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the scheduling algorithms and persistence.
  The engine reads resources, windows, services and bookings through these
  interfaces; catalog lifecycle CRUD lives with the implementations.

THE CONFLICT GUARD:
  BookingRepository.Insert is the authoritative last-resort guard against
  races the in-process conflict check missed. Implementations MUST reject
  an insert whose interval overlaps an active booking on the same resource
  and date, returning ErrBookingConflict. The in-process check only turns
  most conflicts into a clean validation error instead of a late storage
  conflict; it is not the source of truth.

IMPLEMENTATIONS:
  - store/sqlite: production store, guard inside an IMMEDIATE transaction
  - schedule/store: in-memory store for tests and development

SEE ALSO:
  - occupancy.go: reads ListActive through BookingRepository
  - booking/service.go: drives Insert/Delete for atomic reservations
*/
package schedule

import (
	"context"
	"time"
)

// ResourceRepository provides resources, their capabilities and windows.
type ResourceRepository interface {
	// GetResource returns nil when the resource does not exist.
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)

	// GetWindow returns the resource's active window for a weekday,
	// or nil when the resource does not work that day.
	GetWindow(ctx context.Context, id ResourceID, weekday time.Weekday) (*WorkingWindow, error)

	// ListWindows returns all windows defined for a resource.
	ListWindows(ctx context.Context, id ResourceID) ([]WorkingWindow, error)

	// GetOwnerWindow returns the owner's operating window for a weekday,
	// or nil when none is defined.
	GetOwnerWindow(ctx context.Context, ownerID OwnerID, weekday time.Weekday) (*OwnerWindow, error)

	// ListCapable returns the resources able to perform a service, in a
	// stable deterministic order (resource creation order).
	ListCapable(ctx context.Context, serviceID ServiceID, ownerID OwnerID) ([]ResourceID, error)
}

// BookingRepository persists bookings.
type BookingRepository interface {
	// ListActive returns the bookings occupying time for a resource on a
	// date, i.e. those with status in {pending, confirmed, in_progress}.
	// Order is unspecified; intervals are neither sorted nor merged.
	ListActive(ctx context.Context, resourceID ResourceID, date Date) ([]Booking, error)

	// Insert persists one booking. Returns ErrBookingConflict when the
	// interval overlaps an active booking on the same resource and date.
	Insert(ctx context.Context, b Booking) error

	// Delete removes a booking row. Used only by the compensating
	// rollback path of a failed multi-part reservation.
	Delete(ctx context.Context, id BookingID) error

	// Get returns nil when the booking does not exist.
	Get(ctx context.Context, id BookingID) (*Booking, error)

	// ListByReservation returns all sub-bookings sharing a reservation id.
	ListByReservation(ctx context.Context, reservationID string) ([]Booking, error)

	// UpdateStatus sets a booking's status and, for cancellations, the
	// reason. Transition legality is the caller's concern.
	UpdateStatus(ctx context.Context, id BookingID, status BookingStatus, reason string) error

	// ListOverdue returns a conservative superset of the active bookings
	// whose end lies before the given instant, for the no-show/completion
	// sweep. Booking minutes are owner-local wall clock, so implementations
	// widen the cutoff by the maximum zone offset; the sweep re-checks each
	// candidate in its owner's zone before transitioning.
	ListOverdue(ctx context.Context, asOf time.Time) ([]Booking, error)
}

// ServiceCatalog provides service definitions.
type ServiceCatalog interface {
	// GetService returns nil when the service does not exist.
	GetService(ctx context.Context, id ServiceID) (*Service, error)

	ListServices(ctx context.Context, ownerID OwnerID) ([]Service, error)
}

// OwnerConfigs provides per-owner scheduling configuration.
type OwnerConfigs interface {
	// GetConfig returns the owner's configuration, or ErrOwnerNotFound.
	GetConfig(ctx context.Context, ownerID OwnerID) (OwnerConfig, error)
}

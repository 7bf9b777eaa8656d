/*
Package schedule provides the core availability and booking engine.

PURPOSE:
  This package contains the algorithms for a staffed-business appointment
  system: generating candidate start times over working windows, tracking
  occupancy from active bookings, validating schedule constraints, and laying
  out multi-service reservations back-to-back with resource assignment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource: an entity whose time is scheduled (a staff member, a room)
  - WorkingWindow: a resource's available clock range for one weekday
  - Booking: a committed interval on a resource, with a status lifecycle
  - ServiceRequest: one requested service with a duration snapshot
  - OwnerConfig: per-owner scheduling knobs, threaded explicitly

DESIGN PRINCIPLES:
  1. Purity: slot generation, availability and planning are pure functions
     of their inputs, safe under unbounded parallel invocation
  2. Precision: prices use decimal.Decimal to avoid floating-point errors
  3. Type Safety: strong typing for IDs prevents mixing resource/service IDs
  4. Snapshots: durations and prices are copied from the catalog at request
     time so later catalog edits never change a placed booking

SEE ALSO:
  - time.go: TimeOfDay/Interval/Date arithmetic
  - slots.go: slot generation and availability calculation
  - planner.go: sequential planning and auto-assignment
  - store.go: repository interfaces consumed by the engine
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type ResourceID string
type ServiceID string
type BookingID string

// =============================================================================
// CATALOG ENTITIES - Read by the engine, owned by external collaborators
// =============================================================================

// Resource is an entity whose time is scheduled.
type Resource struct {
	ID        ResourceID
	OwnerID   OwnerID
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Service is a bookable catalog entry.
type Service struct {
	ID              ServiceID
	OwnerID         OwnerID
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	Active          bool
}

// =============================================================================
// WORKING WINDOWS
// =============================================================================

// WorkingWindow is a resource's available clock range for one weekday.
// Invariant: Start < End. Baseline supports one active window per
// (resource, weekday); overlap detection is written generically so a
// multi-shift extension does not require redesign.
type WorkingWindow struct {
	ID         string
	ResourceID ResourceID
	Weekday    time.Weekday
	Start      TimeOfDay
	End        TimeOfDay
	Active     bool
}

func (w WorkingWindow) Interval() Interval { return Interval{Start: w.Start, End: w.End} }

// OwnerWindow is the owning entity's operating range for one weekday.
// Every resource window for a weekday must lie fully within it.
type OwnerWindow struct {
	OwnerID OwnerID
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
	Closed  bool
}

func (w OwnerWindow) Interval() Interval { return Interval{Start: w.Start, End: w.End} }

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no_show"
)

// statusTransitions is the closed transition table for the booking lifecycle.
// Anything not listed is an invalid transition.
var statusTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusNoShow},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition s -> to is allowed.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the status occupies time for conflict purposes.
// Only pending, confirmed and in_progress bookings block other bookings.
func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

// Booking is one committed interval on a resource. A multi-service
// reservation produces one Booking per service; siblings share a
// ReservationID but are independent for conflict purposes.
type Booking struct {
	ID            BookingID
	OwnerID       OwnerID
	ResourceID    ResourceID
	ServiceID     ServiceID
	ReservationID string
	Date          Date
	Start         TimeOfDay
	End           TimeOfDay
	// Snapshots taken at booking time; catalog edits never change them.
	DurationMinutes int
	Price           decimal.Decimal
	Status          BookingStatus
	CustomerName    string
	CustomerPhone   string
	CancelReason    string
	CreatedAt       time.Time
}

func (b Booking) Interval() Interval { return Interval{Start: b.Start, End: b.End} }

// =============================================================================
// SERVICE REQUESTS
// =============================================================================

// ServiceRequest is one requested service within a reservation.
// DurationMinutes is a snapshot copied from the catalog at request time.
// An empty ResourceID means the resource is auto-assigned.
type ServiceRequest struct {
	ServiceID       ServiceID
	DurationMinutes int
	ResourceID      ResourceID
}

// TotalDuration sums the durations of the requests, in minutes.
func TotalDuration(requests []ServiceRequest) int {
	total := 0
	for _, r := range requests {
		total += r.DurationMinutes
	}
	return total
}

// =============================================================================
// OWNER CONFIG - Explicit configuration, never read from ambient state
// =============================================================================

const (
	DefaultGranularityMinutes = 10
	DefaultMinAdvanceHours    = 2
	DefaultMaxAdvanceDays     = 90
)

// OwnerConfig carries the per-owner scheduling policy. It is threaded
// explicitly through every call that needs it.
type OwnerConfig struct {
	OwnerID                OwnerID
	SlotGranularityMinutes int
	MinAdvanceHours        int
	MaxAdvanceDays         int
	RequiresApproval       bool
	Location               *time.Location
}

// DefaultOwnerConfig returns the baseline configuration for an owner.
func DefaultOwnerConfig(ownerID OwnerID) OwnerConfig {
	return OwnerConfig{
		OwnerID:                ownerID,
		SlotGranularityMinutes: DefaultGranularityMinutes,
		MinAdvanceHours:        DefaultMinAdvanceHours,
		MaxAdvanceDays:         DefaultMaxAdvanceDays,
		Location:               time.UTC,
	}
}

// Granularity returns the slot granularity, falling back to the default
// when unset.
func (c OwnerConfig) Granularity() int {
	if c.SlotGranularityMinutes <= 0 {
		return DefaultGranularityMinutes
	}
	return c.SlotGranularityMinutes
}

// Loc returns the owner's timezone, falling back to UTC when unset.
func (c OwnerConfig) Loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

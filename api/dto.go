/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with API clients, separate from the
  engine types. DTOs use string dates ("2006-01-02") and clock times
  ("15:04"); conversion to engine types happens in the handlers.

CONVENTIONS:
  - Dates are "YYYY-MM-DD" strings in the owner's local calendar
  - Times of day are "HH:MM" strings
  - Prices are decimal strings, never floats
  - Errors follow ErrorResponse: {"error": "...", "details": "..."}

SEE ALSO:
  - handlers.go: conversion and validation
*/
package api

// =============================================================================
// OWNER DTOs
// =============================================================================

// CreateOwnerRequest registers an owning entity with its scheduling policy.
// Absent knobs fall back to engine defaults; an explicit value is kept as
// given, so min_advance_hours of 0 configures a walk-in policy.
type CreateOwnerRequest struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Timezone               string `json:"timezone"`
	SlotGranularityMinutes *int   `json:"slot_granularity_minutes,omitempty"`
	MinAdvanceHours        *int   `json:"min_advance_hours,omitempty"`
	MaxAdvanceDays         *int   `json:"max_advance_days,omitempty"`
	RequiresApproval       bool   `json:"requires_approval"`
}

// OwnerWindowRequest sets the owner's operating range for one weekday.
type OwnerWindowRequest struct {
	Weekday int    `json:"weekday"` // 0 = Sunday, per time.Weekday
	Start   string `json:"start"`
	End     string `json:"end"`
	Closed  bool   `json:"closed"`
}

// =============================================================================
// RESOURCE / SERVICE DTOs
// =============================================================================

type CreateResourceRequest struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ServiceIDs []string `json:"service_ids"` // capabilities
}

type ResourceDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type CreateServiceRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

type ServiceDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
}

// WindowRequest defines a working window for a resource's weekday.
type WindowRequest struct {
	ID      string `json:"id"`
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Active  *bool  `json:"active,omitempty"` // nil means active
}

type WindowDTO struct {
	ID      string `json:"id"`
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Active  bool   `json:"active"`
}

// =============================================================================
// AVAILABILITY DTOs
// =============================================================================

// AvailabilityDTO lists candidate overall start times on one resource.
type AvailabilityDTO struct {
	ResourceID string   `json:"resource_id"`
	Starts     []string `json:"starts"`
}

// CheckResponse answers a single-slot probe.
type CheckResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// =============================================================================
// BOOKING DTOs
// =============================================================================

// BookingServiceRequest is one service line of a reservation. An empty
// resource_id requests auto-assignment.
type BookingServiceRequest struct {
	ServiceID  string `json:"service_id"`
	ResourceID string `json:"resource_id,omitempty"`
}

// CreateBookingRequest books one or more services back-to-back from Start.
type CreateBookingRequest struct {
	OwnerID       string                  `json:"owner_id"`
	Services      []BookingServiceRequest `json:"services"`
	Date          string                  `json:"date"`
	Start         string                  `json:"start"`
	CustomerName  string                  `json:"customer_name"`
	CustomerPhone string                  `json:"customer_phone"`
}

type BookingDTO struct {
	ID              string `json:"id"`
	ReservationID   string `json:"reservation_id"`
	ResourceID      string `json:"resource_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Status          string `json:"status"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
}

// ReservationDTO groups the sub-bookings placed together.
type ReservationDTO struct {
	ReservationID string       `json:"reservation_id"`
	Date          string       `json:"date"`
	Start         string       `json:"start"`
	End           string       `json:"end"`
	Bookings      []BookingDTO `json:"bookings"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// StatusRequest moves a booking through the lifecycle.
type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

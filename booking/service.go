/*
Package booking exposes the reservation operations on top of the schedule
engine.

PURPOSE:
  The schedule package computes; this package commits. It owns the exposed
  operations of the system:
  - ComputeAvailability: candidate starts per resource
  - CheckAvailability:   one proposed slot, with a rejection reason
  - CreateBooking:       temporal policy + plan + atomic persistence
  - CancelBooking / TransitionStatus: lifecycle management
  - SweepOverdue:        background no-show/completion pass

ATOMICITY:
  A reservation persists one booking row per planned segment, all-or-nothing.
  If any insert fails, rows already written for the reservation are deleted
  before the error is returned: a reservation is either fully present or
  fully absent, never partial.

RETRIES:
  The storage layer is ground truth for conflicts. When an insert loses a
  race, CreateBooking replans and retries a bounded number of times with
  backoff, then surfaces the conflict for the caller to retry wholesale.

SEE ALSO:
  - schedule/planner.go: the pure planning this package persists
  - schedule/store.go: the repository contracts driven here
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service wires the repositories into the exposed booking operations.
type Service struct {
	Resources schedule.ResourceRepository
	Bookings  schedule.BookingRepository
	Catalog   schedule.ServiceCatalog
	Configs   schedule.OwnerConfigs

	Log zerolog.Logger

	// Now is injected so temporal policy is deterministic in tests.
	Now func() time.Time

	// Bounded retry on storage conflicts. Never unbounded.
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewService creates a booking service with default retry policy.
func NewService(resources schedule.ResourceRepository, bookings schedule.BookingRepository, catalog schedule.ServiceCatalog, configs schedule.OwnerConfigs, log zerolog.Logger) *Service {
	return &Service{
		Resources:    resources,
		Bookings:     bookings,
		Catalog:      catalog,
		Configs:      configs,
		Log:          log,
		Now:          time.Now,
		MaxRetries:   3,
		RetryBackoff: 50 * time.Millisecond,
	}
}

func (s *Service) occupancy() *schedule.OccupancyIndex {
	return &schedule.OccupancyIndex{Bookings: s.Bookings}
}

func (s *Service) planner() *schedule.Planner {
	return &schedule.Planner{Resources: s.Resources, Occupancy: s.occupancy()}
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// ResourceAvailability is the candidate starts for one resource.
type ResourceAvailability struct {
	ResourceID schedule.ResourceID
	Starts     []schedule.TimeOfDay
}

// ComputeAvailability returns candidate overall start times for the given
// services on a date. With a resource given, the result is that resource's
// starts for the summed duration of all services as one contiguous block.
// With none, it fans out over every resource capable of ALL the services,
// matching the shared-resource rule CreateBooking applies.
//
// An empty result is a valid answer, never an error.
func (s *Service) ComputeAvailability(ctx context.Context, ownerID schedule.OwnerID, resourceID schedule.ResourceID, serviceIDs []schedule.ServiceID, date schedule.Date) ([]ResourceAvailability, error) {
	cfg, err := s.Configs.GetConfig(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	total, err := s.totalDuration(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}

	if resourceID != "" {
		if r, err := s.Resources.GetResource(ctx, resourceID); err != nil {
			return nil, err
		} else if r == nil {
			return nil, schedule.ErrResourceNotFound
		}
		starts, err := s.startsOn(ctx, resourceID, date, total, cfg.Granularity())
		if err != nil {
			return nil, err
		}
		return []ResourceAvailability{{ResourceID: resourceID, Starts: starts}}, nil
	}

	candidates, err := s.capableOfAll(ctx, ownerID, serviceIDs)
	if err != nil {
		return nil, err
	}
	var result []ResourceAvailability
	for _, rid := range candidates {
		starts, err := s.startsOn(ctx, rid, date, total, cfg.Granularity())
		if err != nil {
			return nil, err
		}
		result = append(result, ResourceAvailability{ResourceID: rid, Starts: starts})
	}
	return result, nil
}

// startsOn computes the free starts on one resource for one contiguous
// duration. A resource that does not work that day simply has no starts.
func (s *Service) startsOn(ctx context.Context, resourceID schedule.ResourceID, date schedule.Date, durationMinutes, granularity int) ([]schedule.TimeOfDay, error) {
	window, err := s.Resources.GetWindow(ctx, resourceID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if window == nil || !window.Active {
		return nil, nil
	}
	busy, err := s.occupancy().BusyIntervals(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	return schedule.AvailableStarts(window.Interval(), busy, durationMinutes, granularity), nil
}

// capableOfAll intersects the capability lists, preserving creation order.
func (s *Service) capableOfAll(ctx context.Context, ownerID schedule.OwnerID, serviceIDs []schedule.ServiceID) ([]schedule.ResourceID, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	capable, err := s.Resources.ListCapable(ctx, serviceIDs[0], ownerID)
	if err != nil {
		return nil, err
	}
	for _, sid := range serviceIDs[1:] {
		next, err := s.Resources.ListCapable(ctx, sid, ownerID)
		if err != nil {
			return nil, err
		}
		inNext := make(map[schedule.ResourceID]bool, len(next))
		for _, id := range next {
			inNext[id] = true
		}
		var kept []schedule.ResourceID
		for _, id := range capable {
			if inNext[id] {
				kept = append(kept, id)
			}
		}
		capable = kept
	}
	return capable, nil
}

func (s *Service) totalDuration(ctx context.Context, serviceIDs []schedule.ServiceID) (int, error) {
	total := 0
	for _, sid := range serviceIDs {
		svc, err := s.Catalog.GetService(ctx, sid)
		if err != nil {
			return 0, err
		}
		if svc == nil {
			return 0, fmt.Errorf("%w: %s", schedule.ErrServiceNotFound, sid)
		}
		total += svc.DurationMinutes
	}
	return total, nil
}

// CheckResult is the answer to a single-slot availability probe.
type CheckResult struct {
	Available bool
	Reason    string // empty when available
}

// Probe rejection reasons, stable strings for API clients.
const (
	ReasonOutsideHours = "outside_working_hours"
	ReasonConflict     = "conflict"
	ReasonInThePast    = "in_the_past"
	ReasonTooSoon      = "too_soon"
	ReasonTooFarAhead  = "too_far_ahead"
)

// CheckAvailability tests one proposed slot for one service on one resource.
func (s *Service) CheckAvailability(ctx context.Context, ownerID schedule.OwnerID, resourceID schedule.ResourceID, serviceID schedule.ServiceID, date schedule.Date, start schedule.TimeOfDay) (CheckResult, error) {
	svc, err := s.Catalog.GetService(ctx, serviceID)
	if err != nil {
		return CheckResult{}, err
	}
	if svc == nil {
		return CheckResult{}, fmt.Errorf("%w: %s", schedule.ErrServiceNotFound, serviceID)
	}
	cfg, err := s.Configs.GetConfig(ctx, ownerID)
	if err != nil {
		return CheckResult{}, err
	}

	if err := s.validateTiming(cfg, date, start); err != nil {
		return CheckResult{Available: false, Reason: timingReason(err)}, nil
	}

	iv := schedule.Interval{Start: start, End: start.Add(svc.DurationMinutes)}
	window, err := s.Resources.GetWindow(ctx, resourceID, date.Weekday())
	if err != nil {
		return CheckResult{}, err
	}
	if window == nil || !window.Active || !window.Interval().Contains(iv) {
		return CheckResult{Available: false, Reason: ReasonOutsideHours}, nil
	}
	conflict, err := s.occupancy().HasConflict(ctx, resourceID, date, iv, "")
	if err != nil {
		return CheckResult{}, err
	}
	if conflict {
		return CheckResult{Available: false, Reason: ReasonConflict}, nil
	}
	return CheckResult{Available: true}, nil
}

func timingReason(err error) string {
	switch {
	case errors.Is(err, schedule.ErrInThePast):
		return ReasonInThePast
	case errors.Is(err, schedule.ErrTooSoon):
		return ReasonTooSoon
	case errors.Is(err, schedule.ErrTooFarAhead):
		return ReasonTooFarAhead
	default:
		return err.Error()
	}
}

// =============================================================================
// CREATE - Temporal policy, plan, atomic persistence
// =============================================================================

// CreateRequest is one customer reservation of one or more services laid
// back-to-back from Start.
type CreateRequest struct {
	OwnerID       schedule.OwnerID
	Requests      []schedule.ServiceRequest
	Date          schedule.Date
	Start         schedule.TimeOfDay
	CustomerName  string
	CustomerPhone string
}

// CreateBooking validates temporal policy once over the overall span, plans
// the reservation, and persists one booking per segment atomically. On a
// storage conflict it replans and retries with backoff, bounded by
// MaxRetries, then surfaces the conflict.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) ([]schedule.Booking, error) {
	cfg, err := s.Configs.GetConfig(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	requests, prices, err := s.snapshotRequests(ctx, req.Requests)
	if err != nil {
		return nil, err
	}

	// Temporal policy applies once per reservation, over the overall span.
	if err := s.validateTiming(cfg, req.Date, req.Start); err != nil {
		return nil, err
	}

	status := schedule.StatusConfirmed
	if cfg.RequiresApproval {
		status = schedule.StatusPending
	}

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		plan, err := s.planner().Plan(ctx, req.OwnerID, requests, req.Date, req.Start)
		if err != nil {
			return nil, err
		}

		bookings := s.buildBookings(req, plan, prices, status)
		if err := s.persist(ctx, bookings); err != nil {
			if errors.Is(err, schedule.ErrBookingConflict) {
				// Lost a race after the in-process check passed. Replan:
				// availability may have shifted.
				lastErr = err
				s.Log.Warn().Int("attempt", attempt+1).
					Str("owner", string(req.OwnerID)).
					Msg("booking conflict on insert, replanning")
				continue
			}
			return nil, fmt.Errorf("%w: %v", schedule.ErrBookingFailed, err)
		}
		return bookings, nil
	}
	return nil, lastErr
}

// snapshotRequests fills missing durations from the catalog and collects
// price snapshots. Durations already present are kept untouched so a
// caller-supplied snapshot survives catalog edits.
func (s *Service) snapshotRequests(ctx context.Context, requests []schedule.ServiceRequest) ([]schedule.ServiceRequest, map[schedule.ServiceID]schedule.Service, error) {
	if len(requests) == 0 {
		return nil, nil, fmt.Errorf("create booking: no services requested")
	}
	out := make([]schedule.ServiceRequest, len(requests))
	services := make(map[schedule.ServiceID]schedule.Service, len(requests))
	for i, r := range requests {
		svc, err := s.Catalog.GetService(ctx, r.ServiceID)
		if err != nil {
			return nil, nil, err
		}
		if svc == nil {
			return nil, nil, fmt.Errorf("%w: %s", schedule.ErrServiceNotFound, r.ServiceID)
		}
		if r.DurationMinutes <= 0 {
			r.DurationMinutes = svc.DurationMinutes
		}
		out[i] = r
		services[r.ServiceID] = *svc
	}
	return out, services, nil
}

func (s *Service) buildBookings(req CreateRequest, plan *schedule.Plan, services map[schedule.ServiceID]schedule.Service, status schedule.BookingStatus) []schedule.Booking {
	reservationID := uuid.NewString()
	now := s.Now()
	bookings := make([]schedule.Booking, len(plan.Segments))
	for i, seg := range plan.Segments {
		bookings[i] = schedule.Booking{
			ID:              schedule.BookingID(uuid.NewString()),
			OwnerID:         req.OwnerID,
			ResourceID:      seg.ResourceID,
			ServiceID:       seg.Request.ServiceID,
			ReservationID:   reservationID,
			Date:            req.Date,
			Start:           seg.Start,
			End:             seg.End,
			DurationMinutes: seg.Request.DurationMinutes,
			Price:           services[seg.Request.ServiceID].Price,
			Status:          status,
			CustomerName:    req.CustomerName,
			CustomerPhone:   req.CustomerPhone,
			CreatedAt:       now,
		}
	}
	return bookings
}

// persist inserts every row or none. On failure, rows already written for
// this reservation are deleted before returning; after any row is written,
// abandonment must go through this compensating path, never a bare abort.
func (s *Service) persist(ctx context.Context, bookings []schedule.Booking) error {
	for i, b := range bookings {
		if err := s.Bookings.Insert(ctx, b); err != nil {
			s.rollback(ctx, bookings[:i])
			return err
		}
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, inserted []schedule.Booking) {
	for _, b := range inserted {
		if err := s.Bookings.Delete(ctx, b.ID); err != nil {
			// Orphaned row; needs operator attention.
			s.Log.Error().Err(err).
				Str("booking", string(b.ID)).
				Str("reservation", b.ReservationID).
				Msg("compensating delete failed")
		}
	}
}

// validateTiming enforces the temporal policy for a reservation start.
func (s *Service) validateTiming(cfg schedule.OwnerConfig, date schedule.Date, start schedule.TimeOfDay) error {
	now := s.Now().In(cfg.Loc())
	startAt := date.At(start, cfg.Loc())

	if !startAt.After(now) {
		return fmt.Errorf("%w: %s", schedule.ErrInThePast, startAt.Format(time.RFC3339))
	}
	if startAt.Sub(now) < time.Duration(cfg.MinAdvanceHours)*time.Hour {
		return fmt.Errorf("%w: need %dh notice", schedule.ErrTooSoon, cfg.MinAdvanceHours)
	}
	if startAt.After(now.AddDate(0, 0, cfg.MaxAdvanceDays)) {
		return fmt.Errorf("%w: beyond %d days", schedule.ErrTooFarAhead, cfg.MaxAdvanceDays)
	}
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// CancelBooking cancels one booking, recording an optional reason.
func (s *Service) CancelBooking(ctx context.Context, id schedule.BookingID, reason string) error {
	return s.TransitionStatus(ctx, id, schedule.StatusCancelled, reason)
}

// TransitionStatus moves a booking through the lifecycle state machine,
// rejecting transitions the table does not allow.
func (s *Service) TransitionStatus(ctx context.Context, id schedule.BookingID, to schedule.BookingStatus, reason string) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", schedule.ErrInvalidTransition, to)
	}
	b, err := s.Bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return schedule.ErrBookingNotFound
	}
	if !b.Status.CanTransitionTo(to) {
		return &schedule.TransitionError{BookingID: id, From: b.Status, To: to}
	}
	return s.Bookings.UpdateStatus(ctx, id, to, reason)
}

// GetReservation returns all sub-bookings of a reservation, in start order.
func (s *Service) GetReservation(ctx context.Context, reservationID string) ([]schedule.Booking, error) {
	return s.Bookings.ListByReservation(ctx, reservationID)
}

// =============================================================================
// SWEEP - Overdue bookings nobody closed out
// =============================================================================

// SweepOverdue closes out active bookings whose end has passed in their
// owner's timezone: pending reservations never approved are cancelled,
// confirmed ones the customer missed become no_show, and in_progress ones
// complete. Returns the number of bookings transitioned.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	overdue, err := s.Bookings.ListOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}

	configs := make(map[schedule.OwnerID]schedule.OwnerConfig)
	swept := 0
	for _, b := range overdue {
		cfg, ok := configs[b.OwnerID]
		if !ok {
			cfg, err = s.Configs.GetConfig(ctx, b.OwnerID)
			if err != nil {
				s.Log.Error().Err(err).Str("owner", string(b.OwnerID)).Msg("sweep config lookup failed")
				continue
			}
			configs[b.OwnerID] = cfg
		}
		// ListOverdue over-approximates across timezones. Booking minutes
		// are owner-local wall clock, so the owner's zone decides.
		if !b.Date.At(b.End, cfg.Loc()).Before(asOf) {
			continue
		}

		var to schedule.BookingStatus
		reason := ""
		switch b.Status {
		case schedule.StatusPending:
			to, reason = schedule.StatusCancelled, "not approved before start"
		case schedule.StatusConfirmed:
			to = schedule.StatusNoShow
		case schedule.StatusInProgress:
			to = schedule.StatusCompleted
		default:
			continue
		}
		if err := s.Bookings.UpdateStatus(ctx, b.ID, to, reason); err != nil {
			s.Log.Error().Err(err).Str("booking", string(b.ID)).Msg("sweep transition failed")
			continue
		}
		s.Log.Info().
			Str("booking", string(b.ID)).
			Str("from", string(b.Status)).
			Str("to", string(to)).
			Msg("swept overdue booking")
		swept++
	}
	return swept, nil
}

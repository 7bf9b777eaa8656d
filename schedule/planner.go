/*
planner.go - Sequential multi-service planning and auto-assignment

PURPOSE:
  Lays an ordered list of service durations back-to-back from an overall
  start time and resolves each sub-interval to a resource. Planning is pure
  computation over repository reads: nothing is persisted, so the planner
  is deterministically unit-testable.

ASSIGNMENT POLICY:
  Requests that pin a resource are verified individually against that
  resource's window and occupancy. All unpinned requests of one reservation
  share a single auto-assigned resource: the capability-ordered candidate
  set is scanned in resource creation order and the first resource that
  admits EVERY unpinned sub-interval wins. The availability query uses the
  same single-resource rule, so query and creation always agree.

FAILURE NAMING:
  - ResourceUnavailableError names the service whose pinned resource
    cannot take its sub-interval
  - NoResourceAvailableError names the first unpinned service when the
    candidate set is exhausted

SEE ALSO:
  - occupancy.go: the conflict checks used while admitting intervals
  - booking/service.go: persists a plan atomically
*/
package schedule

import (
	"context"
	"fmt"
)

// =============================================================================
// PLAN - Output of sequential planning
// =============================================================================

// PlannedSegment is one resolved sub-interval of a reservation.
type PlannedSegment struct {
	Request    ServiceRequest
	ResourceID ResourceID
	Start      TimeOfDay
	End        TimeOfDay
}

func (s PlannedSegment) Interval() Interval { return Interval{Start: s.Start, End: s.End} }

// Plan is the ordered layout of a reservation before persistence.
type Plan struct {
	OwnerID  OwnerID
	Date     Date
	Segments []PlannedSegment
}

// Overall returns the reservation's full span, from the first segment's
// start to the last segment's end.
func (p *Plan) Overall() Interval {
	if len(p.Segments) == 0 {
		return Interval{}
	}
	return Interval{
		Start: p.Segments[0].Start,
		End:   p.Segments[len(p.Segments)-1].End,
	}
}

// =============================================================================
// PLANNER
// =============================================================================

// Planner lays service requests back-to-back and resolves resources.
type Planner struct {
	Resources ResourceRepository
	Occupancy *OccupancyIndex
}

// Plan walks the requests in order, advancing a cursor by each duration.
// Pinned requests are verified against their resource; unpinned requests
// are resolved to one shared resource. The cursor advances regardless, so
// segment layout never depends on assignment outcomes.
func (p *Planner) Plan(ctx context.Context, ownerID OwnerID, requests []ServiceRequest, date Date, overallStart TimeOfDay) (*Plan, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("plan: no service requests")
	}

	plan := &Plan{OwnerID: ownerID, Date: date}
	cursor := overallStart
	var unpinned []int // segment indexes awaiting the shared resource

	for i, req := range requests {
		if req.DurationMinutes <= 0 {
			return nil, fmt.Errorf("plan: service %s has no duration", req.ServiceID)
		}
		end := cursor.Add(req.DurationMinutes)
		seg := PlannedSegment{Request: req, ResourceID: req.ResourceID, Start: cursor, End: end}

		if req.ResourceID != "" {
			ok, err := p.Admits(ctx, ownerID, req.ResourceID, date, seg.Interval())
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &ResourceUnavailableError{
					ServiceID:  req.ServiceID,
					ResourceID: req.ResourceID,
					Interval:   seg.Interval(),
				}
			}
		} else {
			unpinned = append(unpinned, i)
		}

		plan.Segments = append(plan.Segments, seg)
		cursor = end
	}

	if len(unpinned) > 0 {
		shared, err := p.findShared(ctx, ownerID, plan, unpinned)
		if err != nil {
			return nil, err
		}
		for _, i := range unpinned {
			plan.Segments[i].ResourceID = shared
		}
	}

	return plan, nil
}

// Admits reports whether the resource exists, is active, belongs to the
// owner, its window fully contains the interval, and no active booking
// conflicts with it. The resource check matters for pinned requests, which
// bypass the owner-scoped ListCapable path.
func (p *Planner) Admits(ctx context.Context, ownerID OwnerID, resourceID ResourceID, date Date, iv Interval) (bool, error) {
	r, err := p.Resources.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if r == nil || !r.Active || r.OwnerID != ownerID {
		return false, nil
	}
	window, err := p.Resources.GetWindow(ctx, resourceID, date.Weekday())
	if err != nil {
		return false, err
	}
	if window == nil || !window.Active || !window.Interval().Contains(iv) {
		return false, nil
	}
	conflict, err := p.Occupancy.HasConflict(ctx, resourceID, date, iv, "")
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

// findShared picks the resource shared by all unpinned segments: the first
// candidate, in creation order, capable of every unpinned service and
// admitting every unpinned sub-interval.
func (p *Planner) findShared(ctx context.Context, ownerID OwnerID, plan *Plan, unpinned []int) (ResourceID, error) {
	first := plan.Segments[unpinned[0]]

	candidates, err := p.Resources.ListCapable(ctx, first.Request.ServiceID, ownerID)
	if err != nil {
		return "", err
	}
	for _, i := range unpinned[1:] {
		capable, err := p.Resources.ListCapable(ctx, plan.Segments[i].Request.ServiceID, ownerID)
		if err != nil {
			return "", err
		}
		candidates = intersect(candidates, capable)
	}

	for _, rid := range candidates {
		admitsAll := true
		for _, i := range unpinned {
			ok, err := p.Admits(ctx, ownerID, rid, plan.Date, plan.Segments[i].Interval())
			if err != nil {
				return "", err
			}
			if !ok {
				admitsAll = false
				break
			}
		}
		if admitsAll {
			return rid, nil
		}
	}

	return "", &NoResourceAvailableError{
		ServiceID: first.Request.ServiceID,
		Interval:  first.Interval(),
	}
}

// intersect keeps the elements of a that also appear in b, preserving a's
// order so candidate scanning stays deterministic.
func intersect(a, b []ResourceID) []ResourceID {
	inB := make(map[ResourceID]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	var out []ResourceID
	for _, id := range a {
		if inB[id] {
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// AUTO ASSIGNMENT
// =============================================================================

// AutoAssigner searches capable resources for one admitting an interval.
type AutoAssigner struct {
	Resources ResourceRepository
	Occupancy *OccupancyIndex
}

// FindResource iterates the capability-ordered resource set for the service
// in resource creation order and returns the first resource whose window
// admits [start, end) without conflict. Returns empty when exhausted.
func (a *AutoAssigner) FindResource(ctx context.Context, ownerID OwnerID, serviceID ServiceID, date Date, start, end TimeOfDay) (ResourceID, error) {
	candidates, err := a.Resources.ListCapable(ctx, serviceID, ownerID)
	if err != nil {
		return "", err
	}
	planner := &Planner{Resources: a.Resources, Occupancy: a.Occupancy}
	iv := Interval{Start: start, End: end}
	for _, rid := range candidates {
		ok, err := planner.Admits(ctx, ownerID, rid, date, iv)
		if err != nil {
			return "", err
		}
		if ok {
			return rid, nil
		}
	}
	return "", nil
}

/*
occupancy.go - Busy-interval lookup and conflict detection

PURPOSE:
  OccupancyIndex answers "what time is already committed on this resource
  for this date" from active bookings, and tests proposed intervals against
  it. Conflict detection uses the same Interval.Overlaps predicate as
  window validation.

SEE ALSO:
  - store.go: BookingRepository.ListActive contract
  - slots.go: availability filtering over the busy set
*/
package schedule

import "context"

// OccupancyIndex reads committed intervals from active bookings.
type OccupancyIndex struct {
	Bookings BookingRepository
}

// BusyIntervals returns the intervals of active bookings for a resource on
// a date. Unsorted and unmerged.
func (oi *OccupancyIndex) BusyIntervals(ctx context.Context, resourceID ResourceID, date Date) ([]Interval, error) {
	bookings, err := oi.Bookings.ListActive(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	intervals := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		intervals = append(intervals, b.Interval())
	}
	return intervals, nil
}

// HasConflict reports whether a proposed interval overlaps any active
// booking on the resource and date. excludeID, when non-empty, skips the
// booking under update so it never conflicts with itself.
func (oi *OccupancyIndex) HasConflict(ctx context.Context, resourceID ResourceID, date Date, iv Interval, excludeID BookingID) (bool, error) {
	bookings, err := oi.Bookings.ListActive(ctx, resourceID, date)
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if iv.Overlaps(b.Interval()) {
			return true, nil
		}
	}
	return false, nil
}

/*
validator.go - Schedule constraint validation

PURPOSE:
  Validates candidate working windows before they are saved:
  1. Internal sanity (start before end, duration within bounds)
  2. Containment inside the owner's operating window for that weekday
  3. Overlap-freedom against the resource's sibling windows

  The same overlap predicate (Interval.Overlaps) is shared with booking
  conflict detection, so window validation and booking validation can
  never disagree about what "overlapping" means.

SEE ALSO:
  - errors.go: the validation error kinds returned here
  - occupancy.go: conflict detection using the same predicate
*/
package schedule

import "fmt"

// Window duration bounds: a working window shorter than 2 hours or longer
// than 12 hours is rejected as a data-entry mistake.
const (
	MinWindowMinutes = 2 * 60
	MaxWindowMinutes = 12 * 60
)

// ValidateWindow checks a window's internal sanity.
func ValidateWindow(w WorkingWindow) error {
	if w.Start >= w.End {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidRange, w.Start, w.End)
	}
	d := w.Interval().Duration()
	if d < MinWindowMinutes || d > MaxWindowMinutes {
		return fmt.Errorf("%w: %d minutes (allowed %d-%d)",
			ErrDurationOutOfBounds, d, MinWindowMinutes, MaxWindowMinutes)
	}
	return nil
}

// ValidateContainment checks that a window lies fully within the owner's
// operating window for the same weekday. A nil or closed parent means the
// owner does not operate that day.
func ValidateContainment(w WorkingWindow, parent *OwnerWindow) error {
	if parent == nil || parent.Closed {
		return fmt.Errorf("%w: %s", ErrOutsideParentHours, w.Weekday)
	}
	if w.Start < parent.Start {
		return &WindowBoundsError{Window: w.Start, Parent: parent.Start, AtEnd: false}
	}
	if w.End > parent.End {
		return &WindowBoundsError{Window: w.End, Parent: parent.End, AtEnd: true}
	}
	return nil
}

// DetectOverlaps checks a candidate window against the resource's existing
// windows. Only active same-weekday entries are considered; the window being
// updated is excluded by ID so a window never collides with itself.
func DetectOverlaps(w WorkingWindow, existing []WorkingWindow) error {
	for _, other := range existing {
		if other.ID == w.ID || other.Weekday != w.Weekday || !other.Active {
			continue
		}
		if w.Interval().Overlaps(other.Interval()) {
			return &ScheduleOverlapError{
				Weekday:  w.Weekday,
				Window:   w.Interval(),
				Existing: other.Interval(),
				WindowID: other.ID,
			}
		}
	}
	return nil
}

// ValidateWindowAgainst runs the full validation pipeline for a candidate
// window: sanity, containment, then sibling overlaps.
func ValidateWindowAgainst(w WorkingWindow, parent *OwnerWindow, existing []WorkingWindow) error {
	if err := ValidateWindow(w); err != nil {
		return err
	}
	if err := ValidateContainment(w, parent); err != nil {
		return err
	}
	return DetectOverlaps(w, existing)
}

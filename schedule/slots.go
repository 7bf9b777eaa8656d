/*
slots.go - Slot generation and availability calculation

PURPOSE:
  Slots() enumerates candidate start times across a window at fixed
  granularity. AvailableStarts() filters those candidates to the ones
  where a requested duration fits entirely inside the window without
  touching any busy interval.

  Both are pure functions of their inputs: no retained state, restartable,
  and safe under unbounded parallel invocation.

CONTRACT:
  The functional contract of AvailableStarts is brute-force
  O(slots x intervals). An implementation may pre-sort or merge busy
  intervals for speed, but must match the brute-force output exactly.

MULTI-SERVICE NOTE:
  When a caller wants N services on one resource with no mid-gaps, it
  passes the SUMMED duration of all N services as one contiguous block.
  This file knows nothing about multiple services.

SEE ALSO:
  - occupancy.go: where busy intervals come from
  - planner.go: multi-service planning on top of this
*/
package schedule

// Slots produces candidate start times start, start+g, start+2g, ...
// strictly less than the window end. The end is exclusive: a slot beginning
// exactly at closing time is never offered.
func Slots(window Interval, granularityMinutes int) []TimeOfDay {
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}
	if !window.IsValid() {
		return nil
	}
	var starts []TimeOfDay
	for s := window.Start; s < window.End; s = s.Add(granularityMinutes) {
		starts = append(starts, s)
	}
	return starts
}

// AvailableStarts returns the candidate starts where durationMinutes fits
// entirely inside the window and [s, s+duration) avoids every busy interval.
func AvailableStarts(window Interval, busy []Interval, durationMinutes, granularityMinutes int) []TimeOfDay {
	if durationMinutes <= 0 {
		return nil
	}
	var starts []TimeOfDay
	for _, s := range Slots(window, granularityMinutes) {
		end := s.Add(durationMinutes)
		if end > window.End {
			continue
		}
		if overlapsAny(Interval{Start: s, End: end}, busy) {
			continue
		}
		starts = append(starts, s)
	}
	return starts
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

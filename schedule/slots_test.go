package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/schedule-engine/schedule"
)

func window(start, end string) schedule.Interval {
	return schedule.NewInterval(schedule.MustTimeOfDay(start), schedule.MustTimeOfDay(end))
}

// =============================================================================
// SLOT GENERATION
// =============================================================================

func TestSlots_EndExclusive(t *testing.T) {
	// GIVEN: a window 09:00-10:00 at 15-minute granularity
	// WHEN: generating candidate starts
	// THEN: starts are 09:00, 09:15, 09:30, 09:45 - the end itself is excluded

	slots := schedule.Slots(window("09:00", "10:00"), 15)

	want := []schedule.TimeOfDay{
		schedule.MustTimeOfDay("09:00"),
		schedule.MustTimeOfDay("09:15"),
		schedule.MustTimeOfDay("09:30"),
		schedule.MustTimeOfDay("09:45"),
	}
	assert.Equal(t, want, slots)
}

func TestSlots_GranularityNotDividingWindow(t *testing.T) {
	// The last candidate before the end is kept even when the granularity
	// does not divide the window evenly.
	slots := schedule.Slots(window("09:00", "09:50"), 20)

	want := []schedule.TimeOfDay{
		schedule.MustTimeOfDay("09:00"),
		schedule.MustTimeOfDay("09:20"),
		schedule.MustTimeOfDay("09:40"),
	}
	assert.Equal(t, want, slots)
}

func TestSlots_EmptyWindow(t *testing.T) {
	assert.Empty(t, schedule.Slots(window("10:00", "10:00"), 10))
	assert.Empty(t, schedule.Slots(window("11:00", "10:00"), 10))
}

// =============================================================================
// AVAILABLE STARTS
// =============================================================================

func TestAvailableStarts_AroundExistingBooking(t *testing.T) {
	// GIVEN: working window 09:00-18:00, granularity 10, one booking
	//        10:00-10:30, requested duration 30 minutes
	// WHEN: computing available starts
	// THEN: 09:00 fits before the booking, 09:40 would run into it,
	//       and 10:30 starts exactly as the booking ends

	busy := []schedule.Interval{window("10:00", "10:30")}
	starts := schedule.AvailableStarts(window("09:00", "18:00"), busy, 30, 10)

	assert.Contains(t, starts, schedule.MustTimeOfDay("09:00"))
	assert.Contains(t, starts, schedule.MustTimeOfDay("09:30"))
	assert.NotContains(t, starts, schedule.MustTimeOfDay("09:40"))
	assert.NotContains(t, starts, schedule.MustTimeOfDay("10:00"))
	assert.NotContains(t, starts, schedule.MustTimeOfDay("10:20"))
	assert.Contains(t, starts, schedule.MustTimeOfDay("10:30"))
}

func TestAvailableStarts_MustFitInsideWindow(t *testing.T) {
	// A 60-minute appointment cannot start 17:30 in a window ending 18:00.
	starts := schedule.AvailableStarts(window("09:00", "18:00"), nil, 60, 30)

	assert.Contains(t, starts, schedule.MustTimeOfDay("17:00"))
	assert.NotContains(t, starts, schedule.MustTimeOfDay("17:30"))
}

func TestAvailableStarts_FullyBooked(t *testing.T) {
	busy := []schedule.Interval{window("09:00", "12:00")}
	starts := schedule.AvailableStarts(window("09:00", "12:00"), busy, 30, 10)
	assert.Empty(t, starts)
}

func TestAvailableStarts_DurationLongerThanWindow(t *testing.T) {
	starts := schedule.AvailableStarts(window("09:00", "10:00"), nil, 90, 10)
	assert.Empty(t, starts)
}

package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/schedule"
	"github.com/warp/schedule-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mondayDate(t *testing.T) schedule.Date {
	t.Helper()
	d, err := schedule.ParseDate("2026-08-31")
	require.NoError(t, err)
	return d
}

func testBooking(id string, rid schedule.ResourceID, date schedule.Date, start, end string, status schedule.BookingStatus) schedule.Booking {
	return schedule.Booking{
		ID:              schedule.BookingID(id),
		OwnerID:         "salon",
		ResourceID:      rid,
		ServiceID:       "cut",
		ReservationID:   "rsv-" + id,
		Date:            date,
		Start:           schedule.MustTimeOfDay(start),
		End:             schedule.MustTimeOfDay(end),
		DurationMinutes: 30,
		Price:           decimal.NewFromInt(40),
		Status:          status,
		CustomerName:    "Dana",
		CreatedAt:       time.Now().UTC(),
	}
}

// =============================================================================
// OWNERS
// =============================================================================

func TestOwnerConfig_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOwner(ctx, sqlite.Owner{
		ID:                     "salon",
		Name:                   "Main Street Salon",
		Timezone:               "Europe/Berlin",
		SlotGranularityMinutes: 15,
		MinAdvanceHours:        4,
		MaxAdvanceDays:         30,
		RequiresApproval:       true,
	}))

	cfg, err := store.GetConfig(ctx, "salon")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.SlotGranularityMinutes)
	assert.Equal(t, 4, cfg.MinAdvanceHours)
	assert.Equal(t, 30, cfg.MaxAdvanceDays)
	assert.True(t, cfg.RequiresApproval)
	assert.Equal(t, "Europe/Berlin", cfg.Loc().String())
}

func TestOwnerConfig_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetConfig(context.Background(), "ghost")
	assert.ErrorIs(t, err, schedule.ErrOwnerNotFound)
}

// =============================================================================
// RESOURCES AND CAPABILITIES
// =============================================================================

func TestListCapable_CreationOrder(t *testing.T) {
	// Auto-assignment scans capable resources in creation order, so the
	// store must return them by insertion, not by id.
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"zoe", "alice", "mia"} {
		require.NoError(t, store.SaveResource(ctx, schedule.Resource{
			ID: schedule.ResourceID(id), OwnerID: "salon", Name: id, Active: true,
		}))
		require.NoError(t, store.AddCapability(ctx, schedule.ResourceID(id), "cut"))
	}

	ids, err := store.ListCapable(ctx, "cut", "salon")
	require.NoError(t, err)
	assert.Equal(t, []schedule.ResourceID{"zoe", "alice", "mia"}, ids)
}

func TestListCapable_ExcludesInactiveAndIncapable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveResource(ctx, schedule.Resource{ID: "alice", OwnerID: "salon", Name: "Alice", Active: true}))
	require.NoError(t, store.SaveResource(ctx, schedule.Resource{ID: "bob", OwnerID: "salon", Name: "Bob", Active: false}))
	require.NoError(t, store.AddCapability(ctx, "alice", "cut"))
	require.NoError(t, store.AddCapability(ctx, "bob", "cut"))

	ids, err := store.ListCapable(ctx, "cut", "salon")
	require.NoError(t, err)
	assert.Equal(t, []schedule.ResourceID{"alice"}, ids)

	ids, err = store.ListCapable(ctx, "color", "salon")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// =============================================================================
// WINDOWS
// =============================================================================

func TestWindows_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	win := schedule.WorkingWindow{
		ID:         "win-1",
		ResourceID: "alice",
		Weekday:    time.Monday,
		Start:      schedule.MustTimeOfDay("09:00"),
		End:        schedule.MustTimeOfDay("17:00"),
		Active:     true,
	}
	require.NoError(t, store.SaveWindow(ctx, win))

	got, err := store.GetWindow(ctx, "alice", time.Monday)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, win.Start, got.Start)
	assert.Equal(t, win.End, got.End)

	// No window on other weekdays.
	got, err = store.GetWindow(ctx, "alice", time.Tuesday)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Updating in place keeps a single row.
	win.End = schedule.MustTimeOfDay("18:00")
	require.NoError(t, store.SaveWindow(ctx, win))
	windows, err := store.ListWindows(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, schedule.MustTimeOfDay("18:00"), windows[0].End)
}

func TestOwnerWindow_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOwnerWindow(ctx, schedule.OwnerWindow{
		OwnerID: "salon",
		Weekday: time.Monday,
		Start:   schedule.MustTimeOfDay("08:00"),
		End:     schedule.MustTimeOfDay("20:00"),
	}))

	got, err := store.GetOwnerWindow(ctx, "salon", time.Monday)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, schedule.MustTimeOfDay("08:00"), got.Start)
	assert.False(t, got.Closed)

	got, err = store.GetOwnerWindow(ctx, "salon", time.Sunday)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// SERVICES
// =============================================================================

func TestServices_PricePrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	price, err := decimal.NewFromString("49.90")
	require.NoError(t, err)
	require.NoError(t, store.SaveService(ctx, schedule.Service{
		ID: "cut", OwnerID: "salon", Name: "Haircut",
		DurationMinutes: 30, Price: price, Active: true,
	}))

	got, err := store.GetService(ctx, "cut")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Price.Equal(price), "expected %s, got %s", price, got.Price)
	assert.Equal(t, 30, got.DurationMinutes)
}

// =============================================================================
// BOOKING CONFLICT GUARD
// =============================================================================

func TestInsert_RejectsOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	require.NoError(t, store.Insert(ctx, testBooking("b-1", "alice", date, "10:00", "10:30", schedule.StatusConfirmed)))

	// Overlapping with a different start still conflicts.
	err := store.Insert(ctx, testBooking("b-2", "alice", date, "10:15", "10:45", schedule.StatusConfirmed))
	assert.ErrorIs(t, err, schedule.ErrBookingConflict)

	// Same start conflicts via the unique index path too.
	err = store.Insert(ctx, testBooking("b-3", "alice", date, "10:00", "10:20", schedule.StatusConfirmed))
	assert.ErrorIs(t, err, schedule.ErrBookingConflict)

	// Back-to-back is allowed: end is exclusive.
	assert.NoError(t, store.Insert(ctx, testBooking("b-4", "alice", date, "10:30", "11:00", schedule.StatusConfirmed)))

	// Other resources and other days are unaffected.
	assert.NoError(t, store.Insert(ctx, testBooking("b-5", "bob", date, "10:00", "10:30", schedule.StatusConfirmed)))
	assert.NoError(t, store.Insert(ctx, testBooking("b-6", "alice", date.AddDays(7), "10:00", "10:30", schedule.StatusConfirmed)))
}

func TestInsert_CancelledDoesNotBlock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	require.NoError(t, store.Insert(ctx, testBooking("b-1", "alice", date, "10:00", "10:30", schedule.StatusCancelled)))
	assert.NoError(t, store.Insert(ctx, testBooking("b-2", "alice", date, "10:00", "10:30", schedule.StatusConfirmed)))
}

func TestInsert_ConcurrentRace_OneWins(t *testing.T) {
	// GIVEN: two goroutines inserting the same slot simultaneously
	// WHEN: both commit
	// THEN: exactly one insert succeeds, the other gets ErrBookingConflict

	store := newTestStore(t)
	date := mondayDate(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"b-race-1", "b-race-2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = store.Insert(context.Background(),
				testBooking(id, "alice", date, "10:00", "10:30", schedule.StatusConfirmed))
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, schedule.ErrBookingConflict)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one racing insert must win")

	active, err := store.ListActive(context.Background(), "alice", date)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

// =============================================================================
// BOOKING LIFECYCLE QUERIES
// =============================================================================

func TestBookings_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	b := testBooking("b-1", "alice", date, "10:00", "10:30", schedule.StatusConfirmed)
	require.NoError(t, store.Insert(ctx, b))

	got, err := store.Get(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ReservationID, got.ReservationID)
	assert.Equal(t, b.Start, got.Start)
	assert.Equal(t, b.End, got.End)
	assert.True(t, got.Price.Equal(b.Price))
	assert.Equal(t, "Dana", got.CustomerName)
	assert.True(t, got.Date.Equal(date))

	missing, err := store.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByReservation_StartOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	b1 := testBooking("b-1", "alice", date, "10:30", "10:50", schedule.StatusConfirmed)
	b2 := testBooking("b-2", "alice", date, "10:00", "10:30", schedule.StatusConfirmed)
	b1.ReservationID = "rsv-x"
	b2.ReservationID = "rsv-x"
	require.NoError(t, store.Insert(ctx, b1))
	require.NoError(t, store.Insert(ctx, b2))

	got, err := store.ListByReservation(ctx, "rsv-x")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, schedule.BookingID("b-2"), got[0].ID)
	assert.Equal(t, schedule.BookingID("b-1"), got[1].ID)
}

func TestUpdateStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	require.NoError(t, store.Insert(ctx, testBooking("b-1", "alice", date, "10:00", "10:30", schedule.StatusConfirmed)))
	require.NoError(t, store.UpdateStatus(ctx, "b-1", schedule.StatusCancelled, "customer called"))

	got, err := store.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, got.Status)
	assert.Equal(t, "customer called", got.CancelReason)

	// Cancelled frees the slot for ListActive.
	active, err := store.ListActive(ctx, "alice", date)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = store.UpdateStatus(ctx, "ghost", schedule.StatusCancelled, "")
	assert.ErrorIs(t, err, schedule.ErrBookingNotFound)
}

func TestListOverdue_ConservativeSuperset(t *testing.T) {
	// Booking minutes are owner-local wall clock, so ListOverdue widens the
	// cutoff by the maximum zone offset (14h): same-day bookings ending
	// after asOf stay in the superset for the sweep's per-owner re-check,
	// but tomorrow's and inactive ones do not.

	store := newTestStore(t)
	ctx := context.Background()
	date := mondayDate(t)

	require.NoError(t, store.Insert(ctx, testBooking("b-past", "alice", date, "09:00", "09:30", schedule.StatusConfirmed)))
	require.NoError(t, store.Insert(ctx, testBooking("b-evening", "alice", date, "16:00", "16:30", schedule.StatusConfirmed)))
	require.NoError(t, store.Insert(ctx, testBooking("b-tomorrow", "alice", date.AddDays(1), "16:00", "16:30", schedule.StatusConfirmed)))
	require.NoError(t, store.Insert(ctx, testBooking("b-done", "bob", date, "09:00", "09:30", schedule.StatusCompleted)))

	asOf := date.At(schedule.MustTimeOfDay("12:00"), time.UTC)
	overdue, err := store.ListOverdue(ctx, asOf)
	require.NoError(t, err)

	ids := make([]schedule.BookingID, len(overdue))
	for i, b := range overdue {
		ids[i] = b.ID
	}
	assert.Contains(t, ids, schedule.BookingID("b-past"))
	assert.Contains(t, ids, schedule.BookingID("b-evening"))
	assert.NotContains(t, ids, schedule.BookingID("b-tomorrow"))
	assert.NotContains(t, ids, schedule.BookingID("b-done"))

	// Two days later everything active is in the superset.
	overdue, err = store.ListOverdue(ctx, asOf.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, overdue, 3)
}

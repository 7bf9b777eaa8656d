package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/api"
	"github.com/warp/schedule-engine/schedule"
	"github.com/warp/schedule-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	t      *testing.T
	router http.Handler
	store  *sqlite.Store
	// bookDate is a week out so temporal policy always passes; windows are
	// created on its weekday.
	bookDate time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(store, zerolog.Nop())
	env := &testEnv{
		t:        t,
		router:   api.NewRouter(handler),
		store:    store,
		bookDate: time.Now().UTC().AddDate(0, 0, 7),
	}
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) decode(rec *httptest.ResponseRecorder, v any) {
	e.t.Helper()
	require.NoError(e.t, json.NewDecoder(rec.Body).Decode(v))
}

func (e *testEnv) weekday() int    { return int(e.bookDate.Weekday()) }
func (e *testEnv) dateStr() string { return e.bookDate.Format("2006-01-02") }

// seedSalon creates an owner, operating hours, a cut service and one
// resource working 09:00-18:00 on the booking weekday.
func (e *testEnv) seedSalon() {
	e.t.Helper()

	rec := e.do(http.MethodPost, "/api/owners", api.CreateOwnerRequest{
		ID: "salon", Name: "Main Street Salon", Timezone: "UTC",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPut, "/api/owners/salon/hours", api.OwnerWindowRequest{
		Weekday: e.weekday(), Start: "08:00", End: "20:00",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/owners/salon/services", api.CreateServiceRequest{
		ID: "cut", Name: "Haircut", DurationMinutes: 30, Price: "40",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/owners/salon/resources", api.CreateResourceRequest{
		ID: "alice", Name: "Alice", ServiceIDs: []string{"cut"},
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPut, "/api/resources/alice/windows", api.WindowRequest{
		ID: "win-1", Weekday: e.weekday(), Start: "09:00", End: "18:00",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// OWNER CONFIGURATION
// =============================================================================

func TestCreateOwner_ZeroAdvanceNoticeKept(t *testing.T) {
	// GIVEN: a walk-in business configuring zero advance notice
	// WHEN: creating the owner with an explicit min_advance_hours of 0
	// THEN: the zero is stored as given; omitted knobs still default

	env := newTestEnv(t)
	zero := 0
	rec := env.do(http.MethodPost, "/api/owners", api.CreateOwnerRequest{
		ID: "walkin", Name: "Walk-in Barbers", MinAdvanceHours: &zero,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cfg, err := env.store.GetConfig(context.Background(), "walkin")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MinAdvanceHours)
	assert.Equal(t, schedule.DefaultGranularityMinutes, cfg.SlotGranularityMinutes)
	assert.Equal(t, schedule.DefaultMaxAdvanceDays, cfg.MaxAdvanceDays)
}

func TestCreateOwner_RejectsInvalidKnobs(t *testing.T) {
	env := newTestEnv(t)

	neg := -1
	rec := env.do(http.MethodPost, "/api/owners", api.CreateOwnerRequest{
		ID: "bad", Name: "Bad", MinAdvanceHours: &neg,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	zero := 0
	rec = env.do(http.MethodPost, "/api/owners", api.CreateOwnerRequest{
		ID: "bad", Name: "Bad", SlotGranularityMinutes: &zero,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/owners", api.CreateOwnerRequest{
		ID: "bad", Name: "Bad", MaxAdvanceDays: &zero,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CATALOG AND WINDOWS
// =============================================================================

func TestSaveWindow_RejectsOutsideOwnerHours(t *testing.T) {
	// GIVEN: the owner opens 08:00
	// WHEN: saving a resource window starting 07:00
	// THEN: 400 with the containment failure

	env := newTestEnv(t)
	env.seedSalon()

	rec := env.do(http.MethodPut, "/api/resources/alice/windows", api.WindowRequest{
		ID: "win-bad", Weekday: env.weekday(), Start: "07:00", End: "12:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp api.ErrorResponse
	env.decode(rec, &resp)
	assert.Contains(t, resp.Details, "opens")
}

func TestSaveWindow_RejectsOverlapAndBadRange(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	// Overlaps win-1 (09:00-18:00) on the same weekday.
	rec := env.do(http.MethodPut, "/api/resources/alice/windows", api.WindowRequest{
		ID: "win-2", Weekday: env.weekday(), Start: "10:00", End: "14:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/resources/alice/windows", api.WindowRequest{
		ID: "win-3", Weekday: env.weekday(), Start: "nope", End: "14:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/resources/ghost/windows", api.WindowRequest{
		ID: "win-4", Weekday: env.weekday(), Start: "09:00", End: "12:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListServicesAndResources(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	rec := env.do(http.MethodGet, "/api/owners/salon/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var services []api.ServiceDTO
	env.decode(rec, &services)
	require.Len(t, services, 1)
	assert.Equal(t, "cut", services[0].ID)
	assert.Equal(t, "40", services[0].Price)

	rec = env.do(http.MethodGet, "/api/owners/salon/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resources []api.ResourceDTO
	env.decode(rec, &resources)
	require.Len(t, resources, 1)
	assert.Equal(t, "alice", resources[0].ID)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestGetAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	path := fmt.Sprintf("/api/owners/salon/availability?date=%s&services=cut", env.dateStr())
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var avail []api.AvailabilityDTO
	env.decode(rec, &avail)
	require.Len(t, avail, 1)
	assert.Equal(t, "alice", avail[0].ResourceID)
	assert.Contains(t, avail[0].Starts, "09:00")
	assert.NotContains(t, avail[0].Starts, "17:40")

	// Missing parameters are client errors.
	rec = env.do(http.MethodGet, "/api/owners/salon/availability?services=cut", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodGet, "/api/owners/salon/availability?date="+env.dateStr(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSlot(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	path := fmt.Sprintf("/api/owners/salon/availability/check?date=%s&time=10:00&service=cut&resource=alice", env.dateStr())
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var check api.CheckResponse
	env.decode(rec, &check)
	assert.True(t, check.Available)

	path = fmt.Sprintf("/api/owners/salon/availability/check?date=%s&time=08:00&service=cut&resource=alice", env.dateStr())
	rec = env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.decode(rec, &check)
	assert.False(t, check.Available)
	assert.Equal(t, "outside_working_hours", check.Reason)
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestCreateBooking_EndToEnd(t *testing.T) {
	// GIVEN: a seeded salon
	// WHEN: booking a cut a week out at 10:00
	// THEN: 201 with one confirmed sub-booking, retrievable by id and by
	//       reservation, and the slot is gone from availability

	env := newTestEnv(t)
	env.seedSalon()

	rec := env.do(http.MethodPost, "/api/bookings", api.CreateBookingRequest{
		OwnerID:      "salon",
		Services:     []api.BookingServiceRequest{{ServiceID: "cut"}},
		Date:         env.dateStr(),
		Start:        "10:00",
		CustomerName: "Dana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rsv api.ReservationDTO
	env.decode(rec, &rsv)
	require.Len(t, rsv.Bookings, 1)
	assert.Equal(t, "confirmed", rsv.Bookings[0].Status)
	assert.Equal(t, "alice", rsv.Bookings[0].ResourceID)
	assert.Equal(t, "10:00", rsv.Start)
	assert.Equal(t, "10:30", rsv.End)

	rec = env.do(http.MethodGet, "/api/bookings/"+rsv.Bookings[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/reservations/"+rsv.ReservationID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The taken slot disappears from availability.
	path := fmt.Sprintf("/api/owners/salon/availability?date=%s&services=cut", env.dateStr())
	rec = env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail []api.AvailabilityDTO
	env.decode(rec, &avail)
	require.Len(t, avail, 1)
	assert.NotContains(t, avail[0].Starts, "10:00")
}

func TestCreateBooking_SlotTakenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	req := api.CreateBookingRequest{
		OwnerID:  "salon",
		Services: []api.BookingServiceRequest{{ServiceID: "cut", ResourceID: "alice"}},
		Date:     env.dateStr(),
		Start:    "10:00",
	}
	rec := env.do(http.MethodPost, "/api/bookings", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The same pinned slot again: the planner reports the resource busy,
	// which is a client-side rejection.
	rec = env.do(http.MethodPost, "/api/bookings", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	rec := env.do(http.MethodPost, "/api/bookings", api.CreateBookingRequest{
		OwnerID: "salon", Date: env.dateStr(), Start: "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/bookings", api.CreateBookingRequest{
		OwnerID:  "salon",
		Services: []api.BookingServiceRequest{{ServiceID: "cut"}},
		Date:     "not-a-date",
		Start:    "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A start in the past violates temporal policy.
	rec = env.do(http.MethodPost, "/api/bookings", api.CreateBookingRequest{
		OwnerID:  "salon",
		Services: []api.BookingServiceRequest{{ServiceID: "cut"}},
		Date:     time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"),
		Start:    "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedSalon()

	rec := env.do(http.MethodPost, "/api/bookings", api.CreateBookingRequest{
		OwnerID:  "salon",
		Services: []api.BookingServiceRequest{{ServiceID: "cut"}},
		Date:     env.dateStr(),
		Start:    "10:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rsv api.ReservationDTO
	env.decode(rec, &rsv)
	id := rsv.Bookings[0].ID

	// confirmed -> completed is not allowed.
	rec = env.do(http.MethodPost, "/api/bookings/"+id+"/status", api.StatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// confirmed -> in_progress is.
	rec = env.do(http.MethodPost, "/api/bookings/"+id+"/status", api.StatusRequest{Status: "in_progress"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// in_progress -> cancelled is not; cancel now fails.
	rec = env.do(http.MethodPost, "/api/bookings/"+id+"/cancel", api.CancelRequest{Reason: "late"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/bookings/ghost/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Owners:
    POST   /api/owners                     Register owner + scheduling policy
    PUT    /api/owners/{id}/hours          Set operating window for a weekday
    GET    /api/owners/{id}/services       List services
    POST   /api/owners/{id}/services       Create service
    GET    /api/owners/{id}/resources      List resources
    POST   /api/owners/{id}/resources      Create resource with capabilities
    GET    /api/owners/{id}/availability   Candidate starts for services+date
    GET    /api/owners/{id}/availability/check  Probe one slot

  Resources:
    GET    /api/resources/{id}/windows     List working windows
    PUT    /api/resources/{id}/windows     Save window (validated)

  Bookings:
    POST   /api/bookings                   Create reservation (multi-service)
    GET    /api/bookings/{id}              Get one booking
    POST   /api/bookings/{id}/cancel       Cancel with reason
    POST   /api/bookings/{id}/status       Lifecycle transition
    GET    /api/reservations/{id}          All sub-bookings of a reservation

ERROR HANDLING:
  Engine errors map to HTTP status via the error helpers:
  - 400: validation and policy rejections (IsClientError)
  - 404: missing records (IsNotFound)
  - 409: booking conflicts (IsRetryable)
  - 500: everything else

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/booking"
	"github.com/warp/schedule-engine/schedule"
	"github.com/warp/schedule-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Booking *booking.Service
	Log     zerolog.Logger
}

// NewHandler creates a handler over the store, wiring the booking service.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Store:   store,
		Booking: booking.NewService(store, store, store, store, log),
		Log:     log,
	}
}

// =============================================================================
// OWNER HANDLERS
// =============================================================================

// CreateOwner registers an owning entity and its scheduling policy.
func (h *Handler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req CreateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "Unknown timezone", err)
			return
		}
	}
	if req.SlotGranularityMinutes != nil && *req.SlotGranularityMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "slot_granularity_minutes must be positive", nil)
		return
	}
	if req.MinAdvanceHours != nil && *req.MinAdvanceHours < 0 {
		writeError(w, http.StatusBadRequest, "min_advance_hours must not be negative", nil)
		return
	}
	if req.MaxAdvanceDays != nil && *req.MaxAdvanceDays <= 0 {
		writeError(w, http.StatusBadRequest, "max_advance_days must be positive", nil)
		return
	}
	owner := sqlite.Owner{
		ID:                     schedule.OwnerID(req.ID),
		Name:                   req.Name,
		Timezone:               req.Timezone,
		SlotGranularityMinutes: intOr(req.SlotGranularityMinutes, schedule.DefaultGranularityMinutes),
		MinAdvanceHours:        intOr(req.MinAdvanceHours, schedule.DefaultMinAdvanceHours),
		MaxAdvanceDays:         intOr(req.MaxAdvanceDays, schedule.DefaultMaxAdvanceDays),
		RequiresApproval:       req.RequiresApproval,
	}
	if err := h.Store.SaveOwner(r.Context(), owner); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save owner", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// SetOwnerHours sets the owner's operating window for one weekday.
func (h *Handler) SetOwnerHours(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))
	var req OwnerWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	win := schedule.OwnerWindow{
		OwnerID: ownerID,
		Weekday: time.Weekday(req.Weekday),
		Closed:  req.Closed,
	}
	if !req.Closed {
		var err error
		if win.Start, win.End, err = parseRange(req.Start, req.End); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid time range", err)
			return
		}
	}
	if err := h.Store.SaveOwnerWindow(r.Context(), win); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save operating hours", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// =============================================================================
// SERVICE CATALOG HANDLERS
// =============================================================================

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be positive", nil)
		return
	}
	price := decimal.Zero
	if req.Price != "" {
		var err error
		if price, err = decimal.NewFromString(req.Price); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid price", err)
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	svc := schedule.Service{
		ID:              schedule.ServiceID(req.ID),
		OwnerID:         ownerID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Price:           price,
		Active:          true,
	}
	if err := h.Store.SaveService(r.Context(), svc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save service", err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceDTO(svc))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))
	services, err := h.Store.ListServices(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list services", err)
		return
	}
	dtos := make([]ServiceDTO, len(services))
	for i, svc := range services {
		dtos[i] = toServiceDTO(svc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))
	var req CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	res := schedule.Resource{
		ID:      schedule.ResourceID(req.ID),
		OwnerID: ownerID,
		Name:    req.Name,
		Active:  true,
	}
	if err := h.Store.SaveResource(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save resource", err)
		return
	}
	for _, sid := range req.ServiceIDs {
		if err := h.Store.AddCapability(r.Context(), res.ID, schedule.ServiceID(sid)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save capability", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, ResourceDTO{ID: req.ID, Name: req.Name, Active: true})
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))
	resources, err := h.Store.ListResources(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list resources", err)
		return
	}
	dtos := make([]ResourceDTO, len(resources))
	for i, res := range resources {
		dtos[i] = ResourceDTO{ID: string(res.ID), Name: res.Name, Active: res.Active}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WINDOW HANDLERS
// =============================================================================

// SaveWindow validates and saves a resource's working window: internal
// sanity, containment in the owner's operating window, then overlap
// freedom against the resource's other windows.
func (h *Handler) SaveWindow(w http.ResponseWriter, r *http.Request) {
	resourceID := schedule.ResourceID(chi.URLParam(r, "id"))
	var req WindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Store.GetResource(r.Context(), resourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load resource", err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "Resource not found", nil)
		return
	}

	win := schedule.WorkingWindow{
		ID:         req.ID,
		ResourceID: resourceID,
		Weekday:    time.Weekday(req.Weekday),
		Active:     req.Active == nil || *req.Active,
	}
	if win.ID == "" {
		win.ID = uuid.NewString()
	}
	if win.Start, win.End, err = parseRange(req.Start, req.End); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time range", err)
		return
	}

	parent, err := h.Store.GetOwnerWindow(r.Context(), res.OwnerID, win.Weekday)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load operating hours", err)
		return
	}
	existing, err := h.Store.ListWindows(r.Context(), resourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load windows", err)
		return
	}
	if win.Active {
		if err := schedule.ValidateWindowAgainst(win, parent, existing); err != nil {
			writeEngineError(w, "Window rejected", err)
			return
		}
	}

	if err := h.Store.SaveWindow(r.Context(), win); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save window", err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	resourceID := schedule.ResourceID(chi.URLParam(r, "id"))
	windows, err := h.Store.ListWindows(r.Context(), resourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list windows", err)
		return
	}
	dtos := make([]WindowDTO, len(windows))
	for i, win := range windows {
		dtos[i] = toWindowDTO(win)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AVAILABILITY HANDLERS
// =============================================================================

// GetAvailability computes candidate starts for one or more services on a
// date. Query params: date (required), services (comma-separated, required),
// resource (optional pin).
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))

	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}
	raw := r.URL.Query().Get("services")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "services parameter is required", nil)
		return
	}
	var serviceIDs []schedule.ServiceID
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			serviceIDs = append(serviceIDs, schedule.ServiceID(s))
		}
	}
	resourceID := schedule.ResourceID(r.URL.Query().Get("resource"))

	availability, err := h.Booking.ComputeAvailability(r.Context(), ownerID, resourceID, serviceIDs, date)
	if err != nil {
		writeEngineError(w, "Failed to compute availability", err)
		return
	}

	dtos := make([]AvailabilityDTO, len(availability))
	for i, a := range availability {
		starts := make([]string, len(a.Starts))
		for j, t := range a.Starts {
			starts[j] = t.String()
		}
		dtos[i] = AvailabilityDTO{ResourceID: string(a.ResourceID), Starts: starts}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CheckSlot probes one proposed slot. Query params: date, time, service,
// resource (all required).
func (h *Handler) CheckSlot(w http.ResponseWriter, r *http.Request) {
	ownerID := schedule.OwnerID(chi.URLParam(r, "id"))

	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}
	start, err := schedule.ParseTimeOfDay(r.URL.Query().Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing time", err)
		return
	}
	serviceID := schedule.ServiceID(r.URL.Query().Get("service"))
	resourceID := schedule.ResourceID(r.URL.Query().Get("resource"))
	if serviceID == "" || resourceID == "" {
		writeError(w, http.StatusBadRequest, "service and resource parameters are required", nil)
		return
	}

	result, err := h.Booking.CheckAvailability(r.Context(), ownerID, resourceID, serviceID, date, start)
	if err != nil {
		writeEngineError(w, "Failed to check availability", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Available: result.Available, Reason: result.Reason})
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking places a reservation of one or more services laid
// back-to-back. Returns 201 with the sub-bookings, or 409 when the slot
// was lost to a concurrent reservation.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OwnerID == "" || len(req.Services) == 0 {
		writeError(w, http.StatusBadRequest, "owner_id and services are required", nil)
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	start, err := schedule.ParseTimeOfDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start time", err)
		return
	}

	requests := make([]schedule.ServiceRequest, len(req.Services))
	for i, s := range req.Services {
		requests[i] = schedule.ServiceRequest{
			ServiceID:  schedule.ServiceID(s.ServiceID),
			ResourceID: schedule.ResourceID(s.ResourceID),
		}
	}

	bookings, err := h.Booking.CreateBooking(r.Context(), booking.CreateRequest{
		OwnerID:       schedule.OwnerID(req.OwnerID),
		Requests:      requests,
		Date:          date,
		Start:         start,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		writeEngineError(w, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := schedule.BookingID(chi.URLParam(r, "id"))
	b, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get booking", err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Booking not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// CancelBooking cancels one booking with an optional reason. An empty or
// absent body is accepted.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := schedule.BookingID(chi.URLParam(r, "id"))
	var req CancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Booking.CancelBooking(r.Context(), id, req.Reason); err != nil {
		writeEngineError(w, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// UpdateStatus moves a booking through the lifecycle state machine.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := schedule.BookingID(chi.URLParam(r, "id"))
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Booking.TransitionStatus(r.Context(), id, schedule.BookingStatus(req.Status), req.Reason); err != nil {
		writeEngineError(w, "Failed to update status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// GetReservation returns all sub-bookings of a reservation, in start order.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bookings, err := h.Booking.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get reservation", err)
		return
	}
	if len(bookings) == 0 {
		writeError(w, http.StatusNotFound, "Reservation not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(bookings))
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toServiceDTO(svc schedule.Service) ServiceDTO {
	return ServiceDTO{
		ID:              string(svc.ID),
		Name:            svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price.String(),
		Active:          svc.Active,
	}
}

func toWindowDTO(win schedule.WorkingWindow) WindowDTO {
	return WindowDTO{
		ID:      win.ID,
		Weekday: int(win.Weekday),
		Start:   win.Start.String(),
		End:     win.End.String(),
		Active:  win.Active,
	}
}

func toBookingDTO(b schedule.Booking) BookingDTO {
	return BookingDTO{
		ID:              string(b.ID),
		ReservationID:   b.ReservationID,
		ResourceID:      string(b.ResourceID),
		ServiceID:       string(b.ServiceID),
		Date:            b.Date.String(),
		Start:           b.Start.String(),
		End:             b.End.String(),
		DurationMinutes: b.DurationMinutes,
		Price:           b.Price.String(),
		Status:          string(b.Status),
		CustomerName:    b.CustomerName,
		CustomerPhone:   b.CustomerPhone,
		CancelReason:    b.CancelReason,
	}
}

func toReservationDTO(bookings []schedule.Booking) ReservationDTO {
	dto := ReservationDTO{Bookings: make([]BookingDTO, len(bookings))}
	for i, b := range bookings {
		dto.Bookings[i] = toBookingDTO(b)
	}
	if len(bookings) > 0 {
		dto.ReservationID = bookings[0].ReservationID
		dto.Date = bookings[0].Date.String()
		dto.Start = bookings[0].Start.String()
		dto.End = bookings[len(bookings)-1].End.String()
	}
	return dto
}

// intOr keeps an explicitly supplied value, zero included.
func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func parseRange(start, end string) (schedule.TimeOfDay, schedule.TimeOfDay, error) {
	s, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := schedule.ParseTimeOfDay(end)
	if err != nil {
		return 0, 0, err
	}
	return s, e, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case schedule.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

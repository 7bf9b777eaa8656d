// Package store provides in-memory repository implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every repository interface with mutex-guarded maps.
// The booking conflict guard runs under the same lock as the insert, so the
// memory store gives the same race protection as the SQLite store.
type Memory struct {
	mu sync.RWMutex

	resources    map[schedule.ResourceID]schedule.Resource
	resourceSeq  []schedule.ResourceID // creation order
	services     map[schedule.ServiceID]schedule.Service
	capabilities map[schedule.ResourceID]map[schedule.ServiceID]bool
	windows      map[schedule.ResourceID][]schedule.WorkingWindow
	ownerWindows map[schedule.OwnerID]map[time.Weekday]schedule.OwnerWindow
	configs      map[schedule.OwnerID]schedule.OwnerConfig
	bookings     map[schedule.BookingID]schedule.Booking
}

func NewMemory() *Memory {
	return &Memory{
		resources:    make(map[schedule.ResourceID]schedule.Resource),
		services:     make(map[schedule.ServiceID]schedule.Service),
		capabilities: make(map[schedule.ResourceID]map[schedule.ServiceID]bool),
		windows:      make(map[schedule.ResourceID][]schedule.WorkingWindow),
		ownerWindows: make(map[schedule.OwnerID]map[time.Weekday]schedule.OwnerWindow),
		configs:      make(map[schedule.OwnerID]schedule.OwnerConfig),
		bookings:     make(map[schedule.BookingID]schedule.Booking),
	}
}

// =============================================================================
// SEEDING - catalog lifecycle, owned by external collaborators
// =============================================================================

func (m *Memory) SaveResource(r schedule.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.resources[r.ID]; !exists {
		m.resourceSeq = append(m.resourceSeq, r.ID)
	}
	m.resources[r.ID] = r
}

func (m *Memory) SaveService(s schedule.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

// AddCapability marks a resource as able to perform a service.
func (m *Memory) AddCapability(resourceID schedule.ResourceID, serviceID schedule.ServiceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capabilities[resourceID] == nil {
		m.capabilities[resourceID] = make(map[schedule.ServiceID]bool)
	}
	m.capabilities[resourceID][serviceID] = true
}

func (m *Memory) SaveWindow(w schedule.WorkingWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	windows := m.windows[w.ResourceID]
	for i, existing := range windows {
		if existing.ID == w.ID {
			windows[i] = w
			return
		}
	}
	m.windows[w.ResourceID] = append(windows, w)
}

func (m *Memory) SaveOwnerWindow(w schedule.OwnerWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerWindows[w.OwnerID] == nil {
		m.ownerWindows[w.OwnerID] = make(map[time.Weekday]schedule.OwnerWindow)
	}
	m.ownerWindows[w.OwnerID][w.Weekday] = w
}

func (m *Memory) SaveConfig(c schedule.OwnerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[c.OwnerID] = c
}

// =============================================================================
// RESOURCE REPOSITORY
// =============================================================================

func (m *Memory) GetResource(_ context.Context, id schedule.ResourceID) (*schedule.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) GetWindow(_ context.Context, id schedule.ResourceID, weekday time.Weekday) (*schedule.WorkingWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.windows[id] {
		if w.Weekday == weekday && w.Active {
			return &w, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListWindows(_ context.Context, id schedule.ResourceID) ([]schedule.WorkingWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]schedule.WorkingWindow, len(m.windows[id]))
	copy(result, m.windows[id])
	return result, nil
}

func (m *Memory) GetOwnerWindow(_ context.Context, ownerID schedule.OwnerID, weekday time.Weekday) (*schedule.OwnerWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.ownerWindows[ownerID][weekday]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Memory) ListCapable(_ context.Context, serviceID schedule.ServiceID, ownerID schedule.OwnerID) ([]schedule.ResourceID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var capable []schedule.ResourceID
	for _, rid := range m.resourceSeq {
		r := m.resources[rid]
		if r.OwnerID != ownerID || !r.Active {
			continue
		}
		if m.capabilities[rid][serviceID] {
			capable = append(capable, rid)
		}
	}
	return capable, nil
}

// =============================================================================
// SERVICE CATALOG / OWNER CONFIGS
// =============================================================================

func (m *Memory) GetService(_ context.Context, id schedule.ServiceID) (*schedule.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListServices(_ context.Context, ownerID schedule.OwnerID) ([]schedule.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []schedule.Service
	for _, s := range m.services {
		if s.OwnerID == ownerID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetConfig(_ context.Context, ownerID schedule.OwnerID) (schedule.OwnerConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[ownerID]
	if !ok {
		return schedule.OwnerConfig{}, schedule.ErrOwnerNotFound
	}
	return c, nil
}

// =============================================================================
// BOOKING REPOSITORY
// =============================================================================

func (m *Memory) ListActive(_ context.Context, resourceID schedule.ResourceID, date schedule.Date) ([]schedule.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked(resourceID, date), nil
}

func (m *Memory) listActiveLocked(resourceID schedule.ResourceID, date schedule.Date) []schedule.Booking {
	var result []schedule.Booking
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.Date.Equal(date) && b.Status.IsActive() {
			result = append(result, b)
		}
	}
	return result
}

// Insert persists one booking. The overlap check and the write happen under
// one lock acquisition, which is the memory-store equivalent of the SQLite
// store's IMMEDIATE transaction: ground truth against racing inserts.
func (m *Memory) Insert(_ context.Context, b schedule.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status.IsActive() {
		for _, existing := range m.listActiveLocked(b.ResourceID, b.Date) {
			if b.Interval().Overlaps(existing.Interval()) {
				return schedule.ErrBookingConflict
			}
		}
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *Memory) Delete(_ context.Context, id schedule.BookingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bookings, id)
	return nil
}

func (m *Memory) Get(_ context.Context, id schedule.BookingID) (*schedule.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ListByReservation(_ context.Context, reservationID string) ([]schedule.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []schedule.Booking
	for _, b := range m.bookings {
		if b.ReservationID == reservationID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id schedule.BookingID, status schedule.BookingStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return schedule.ErrBookingNotFound
	}
	b.Status = status
	if reason != "" {
		b.CancelReason = reason
	}
	m.bookings[id] = b
	return nil
}

// ListOverdue returns a conservative superset of the bookings ending
// before asOf. Booking minutes are owner-local wall clock, so the cutoff
// is widened by the maximum zone offset (14 hours); the sweep re-checks
// each booking in its owner's zone.
func (m *Memory) ListOverdue(_ context.Context, asOf time.Time) ([]schedule.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := asOf.Add(14 * time.Hour)
	var result []schedule.Booking
	for _, b := range m.bookings {
		if !b.Status.IsActive() {
			continue
		}
		end := b.Date.At(b.End, time.UTC)
		if end.Before(cutoff) {
			result = append(result, b)
		}
	}
	return result, nil
}

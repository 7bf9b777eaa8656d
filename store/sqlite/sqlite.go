/*
Package sqlite provides a SQLite-backed implementation of the repository
interfaces.

PURPOSE:
  Implements ResourceRepository, BookingRepository, ServiceCatalog and
  OwnerConfigs over SQLite, plus the catalog lifecycle CRUD the engine
  treats as external. In production the same patterns apply to PostgreSQL -
  only dialect differences.

THE CONFLICT GUARD:
  SQLite has no range-exclusion constraints, so the guard against double
  booking is layered:
  1. Every Insert runs inside an IMMEDIATE transaction (the _txlock=immediate
     DSN option), taking the write lock before the overlap re-check. The
     check-then-insert is therefore atomic against other writers.
  2. A partial unique index over (resource_id, date, start_minute) on active
     rows catches exact-start duplicates as a last resort.
  Either path surfaces schedule.ErrBookingConflict.

KEY TABLES:
  owners:            scheduling config per owning entity
  resources:         staff/rooms; rowid preserves creation order
  services:          bookable catalog entries with decimal prices
  resource_services: capability links
  working_windows:   per-resource weekday windows
  owner_windows:     parent operating windows
  bookings:          committed intervals with lifecycle status

WAL MODE:
  Opened with WAL so readers never block on the single writer.

SEE ALSO:
  - schedule/store.go: interface contracts, including Insert's guard
  - schedule/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/schedule"
)

// Store implements all repository interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer at a time keeps IMMEDIATE transactions honest.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		slot_granularity_minutes INTEGER NOT NULL DEFAULT 10,
		min_advance_hours INTEGER NOT NULL DEFAULT 2,
		max_advance_days INTEGER NOT NULL DEFAULT 90,
		requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_owner ON resources(owner_id);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_services_owner ON services(owner_id);

	CREATE TABLE IF NOT EXISTS resource_services (
		resource_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		PRIMARY KEY (resource_id, service_id)
	);

	CREATE INDEX IF NOT EXISTS idx_resource_services_service
		ON resource_services(service_id);

	CREATE TABLE IF NOT EXISTS working_windows (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		weekday INTEGER NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_windows_resource
		ON working_windows(resource_id, weekday);

	-- Baseline: one active window per (resource, weekday). The validator's
	-- overlap detection is the real guard; this keeps the baseline honest.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_windows_one_active
		ON working_windows(resource_id, weekday) WHERE active;

	CREATE TABLE IF NOT EXISTS owner_windows (
		owner_id TEXT NOT NULL,
		weekday INTEGER NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (owner_id, weekday)
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		customer_name TEXT,
		customer_phone TEXT,
		cancel_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_resource_date
		ON bookings(resource_id, date, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_reservation
		ON bookings(reservation_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_status_date
		ON bookings(status, date);

	-- Last-resort guard: two active bookings can never share an exact start
	-- on one resource. Overlaps with different starts are caught by the
	-- re-check inside the insert transaction.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_start
		ON bookings(resource_id, date, start_minute)
		WHERE status IN ('pending', 'confirmed', 'in_progress');
	`

	_, err := s.db.Exec(schemaSQL)
	return err
}

// =============================================================================
// OWNERS
// =============================================================================

// Owner is the persisted owning entity with its scheduling configuration.
type Owner struct {
	ID                     schedule.OwnerID
	Name                   string
	Timezone               string
	SlotGranularityMinutes int
	MinAdvanceHours        int
	MaxAdvanceDays         int
	RequiresApproval       bool
	CreatedAt              time.Time
}

func (s *Store) SaveOwner(ctx context.Context, o Owner) error {
	if o.Timezone == "" {
		o.Timezone = "UTC"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, name, timezone, slot_granularity_minutes,
			min_advance_hours, max_advance_days, requires_approval, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			slot_granularity_minutes = excluded.slot_granularity_minutes,
			min_advance_hours = excluded.min_advance_hours,
			max_advance_days = excluded.max_advance_days,
			requires_approval = excluded.requires_approval`,
		o.ID, o.Name, o.Timezone, o.SlotGranularityMinutes,
		o.MinAdvanceHours, o.MaxAdvanceDays, o.RequiresApproval,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetConfig implements schedule.OwnerConfigs.
func (s *Store) GetConfig(ctx context.Context, ownerID schedule.OwnerID) (schedule.OwnerConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timezone, slot_granularity_minutes, min_advance_hours,
			max_advance_days, requires_approval
		FROM owners WHERE id = ?`, ownerID)

	var tz string
	cfg := schedule.OwnerConfig{OwnerID: ownerID}
	err := row.Scan(&tz, &cfg.SlotGranularityMinutes, &cfg.MinAdvanceHours,
		&cfg.MaxAdvanceDays, &cfg.RequiresApproval)
	if err == sql.ErrNoRows {
		return schedule.OwnerConfig{}, schedule.ErrOwnerNotFound
	}
	if err != nil {
		return schedule.OwnerConfig{}, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	cfg.Location = loc
	return cfg, nil
}

// =============================================================================
// RESOURCES
// =============================================================================

func (s *Store) SaveResource(ctx context.Context, r schedule.Resource) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, owner_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active`,
		r.ID, r.OwnerID, r.Name, r.Active, r.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetResource(ctx context.Context, id schedule.ResourceID) (*schedule.Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, active, created_at
		FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

func (s *Store) ListResources(ctx context.Context, ownerID schedule.OwnerID) ([]schedule.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, active, created_at
		FROM resources WHERE owner_id = ? ORDER BY rowid`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []schedule.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *r)
	}
	return resources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*schedule.Resource, error) {
	var r schedule.Resource
	var createdAt string
	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// AddCapability marks a resource as able to perform a service.
func (s *Store) AddCapability(ctx context.Context, resourceID schedule.ResourceID, serviceID schedule.ServiceID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO resource_services (resource_id, service_id)
		VALUES (?, ?)`, resourceID, serviceID)
	return err
}

// ListCapable returns capable resources in creation order (rowid order of
// the resources table), giving auto-assignment its stable scan order.
func (s *Store) ListCapable(ctx context.Context, serviceID schedule.ServiceID, ownerID schedule.OwnerID) ([]schedule.ResourceID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id
		FROM resources r
		JOIN resource_services rs ON rs.resource_id = r.id
		WHERE rs.service_id = ? AND r.owner_id = ? AND r.active
		ORDER BY r.rowid`, serviceID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []schedule.ResourceID
	for rows.Next() {
		var id schedule.ResourceID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// WINDOWS
// =============================================================================

func (s *Store) SaveWindow(ctx context.Context, w schedule.WorkingWindow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO working_windows (id, resource_id, weekday, start_minute, end_minute, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weekday = excluded.weekday,
			start_minute = excluded.start_minute,
			end_minute = excluded.end_minute,
			active = excluded.active`,
		w.ID, w.ResourceID, int(w.Weekday), int(w.Start), int(w.End), w.Active,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetWindow(ctx context.Context, id schedule.ResourceID, weekday time.Weekday) (*schedule.WorkingWindow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_id, weekday, start_minute, end_minute, active
		FROM working_windows
		WHERE resource_id = ? AND weekday = ? AND active`, id, int(weekday))
	return scanWindow(row)
}

func (s *Store) ListWindows(ctx context.Context, id schedule.ResourceID) ([]schedule.WorkingWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, weekday, start_minute, end_minute, active
		FROM working_windows WHERE resource_id = ? ORDER BY weekday, start_minute`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []schedule.WorkingWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

func scanWindow(row rowScanner) (*schedule.WorkingWindow, error) {
	var w schedule.WorkingWindow
	var weekday, start, end int
	err := row.Scan(&w.ID, &w.ResourceID, &weekday, &start, &end, &w.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Weekday = time.Weekday(weekday)
	w.Start = schedule.TimeOfDay(start)
	w.End = schedule.TimeOfDay(end)
	return &w, nil
}

func (s *Store) SaveOwnerWindow(ctx context.Context, w schedule.OwnerWindow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owner_windows (owner_id, weekday, start_minute, end_minute, closed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, weekday) DO UPDATE SET
			start_minute = excluded.start_minute,
			end_minute = excluded.end_minute,
			closed = excluded.closed`,
		w.OwnerID, int(w.Weekday), int(w.Start), int(w.End), w.Closed)
	return err
}

func (s *Store) GetOwnerWindow(ctx context.Context, ownerID schedule.OwnerID, weekday time.Weekday) (*schedule.OwnerWindow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, weekday, start_minute, end_minute, closed
		FROM owner_windows WHERE owner_id = ? AND weekday = ?`, ownerID, int(weekday))

	var w schedule.OwnerWindow
	var wd, start, end int
	err := row.Scan(&w.OwnerID, &wd, &start, &end, &w.Closed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Weekday = time.Weekday(wd)
	w.Start = schedule.TimeOfDay(start)
	w.End = schedule.TimeOfDay(end)
	return &w, nil
}

// =============================================================================
// SERVICES
// =============================================================================

func (s *Store) SaveService(ctx context.Context, svc schedule.Service) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, owner_id, name, duration_minutes, price, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			price = excluded.price,
			active = excluded.active`,
		svc.ID, svc.OwnerID, svc.Name, svc.DurationMinutes, svc.Price.String(),
		svc.Active, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetService(ctx context.Context, id schedule.ServiceID) (*schedule.Service, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, duration_minutes, price, active
		FROM services WHERE id = ?`, id)
	return scanService(row)
}

func (s *Store) ListServices(ctx context.Context, ownerID schedule.OwnerID) ([]schedule.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, duration_minutes, price, active
		FROM services WHERE owner_id = ? ORDER BY rowid`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []schedule.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

func scanService(row rowScanner) (*schedule.Service, error) {
	var svc schedule.Service
	var price string
	err := row.Scan(&svc.ID, &svc.OwnerID, &svc.Name, &svc.DurationMinutes, &price, &svc.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	svc.Price, err = decimal.NewFromString(price)
	if err != nil {
		svc.Price = decimal.Zero
	}
	return &svc, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

// Insert persists one booking after re-checking occupancy inside an
// IMMEDIATE transaction. This re-check, not the caller's earlier in-process
// check, is ground truth against racing inserts.
func (s *Store) Insert(ctx context.Context, b schedule.Booking) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if b.Status.IsActive() {
		var overlapping int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bookings
			WHERE resource_id = ? AND date = ?
				AND status IN ('pending', 'confirmed', 'in_progress')
				AND start_minute < ? AND ? < end_minute`,
			b.ResourceID, b.Date.String(), int(b.End), int(b.Start)).Scan(&overlapping)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return schedule.ErrBookingConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, owner_id, resource_id, service_id, reservation_id,
			date, start_minute, end_minute, duration_minutes, price, status,
			customer_name, customer_phone, cancel_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.ResourceID, b.ServiceID, b.ReservationID,
		b.Date.String(), int(b.Start), int(b.End), b.DurationMinutes,
		b.Price.String(), string(b.Status),
		b.CustomerName, b.CustomerPhone, b.CancelReason,
		b.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return schedule.ErrBookingConflict
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, id schedule.BookingID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return err
}

func (s *Store) Get(ctx context.Context, id schedule.BookingID) (*schedule.Booking, error) {
	row := s.db.QueryRowContext(ctx, bookingSelect+` WHERE id = ?`, id)
	return scanBooking(row)
}

func (s *Store) ListActive(ctx context.Context, resourceID schedule.ResourceID, date schedule.Date) ([]schedule.Booking, error) {
	rows, err := s.db.QueryContext(ctx, bookingSelect+`
		WHERE resource_id = ? AND date = ?
			AND status IN ('pending', 'confirmed', 'in_progress')`,
		resourceID, date.String())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListByReservation(ctx context.Context, reservationID string) ([]schedule.Booking, error) {
	rows, err := s.db.QueryContext(ctx, bookingSelect+`
		WHERE reservation_id = ? ORDER BY start_minute`, reservationID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, id schedule.BookingID, status schedule.BookingStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, cancel_reason = CASE WHEN ? != '' THEN ? ELSE cancel_reason END
		WHERE id = ?`,
		string(status), reason, reason, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return schedule.ErrBookingNotFound
	}
	return nil
}

// ListOverdue returns a conservative superset of the active bookings
// ending before asOf. Booking minutes are owner-local wall clock and zones
// run from UTC-12 to UTC+14, so the cutoff is widened by 14 hours to keep
// every booking that could be overdue in some owner zone. The sweep
// re-checks each booking in its owner's zone before transitioning.
func (s *Store) ListOverdue(ctx context.Context, asOf time.Time) ([]schedule.Booking, error) {
	cutoff := asOf.UTC().Add(14 * time.Hour)
	date := cutoff.Format("2006-01-02")
	minute := cutoff.Hour()*60 + cutoff.Minute()
	rows, err := s.db.QueryContext(ctx, bookingSelect+`
		WHERE status IN ('pending', 'confirmed', 'in_progress')
			AND (date < ? OR (date = ? AND end_minute <= ?))`,
		date, date, minute)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

const bookingSelect = `
	SELECT id, owner_id, resource_id, service_id, reservation_id,
		date, start_minute, end_minute, duration_minutes, price, status,
		COALESCE(customer_name, ''), COALESCE(customer_phone, ''),
		COALESCE(cancel_reason, ''), created_at
	FROM bookings`

func scanBooking(row rowScanner) (*schedule.Booking, error) {
	var b schedule.Booking
	var date, price, status, createdAt string
	var start, end int
	err := row.Scan(&b.ID, &b.OwnerID, &b.ResourceID, &b.ServiceID, &b.ReservationID,
		&date, &start, &end, &b.DurationMinutes, &price, &status,
		&b.CustomerName, &b.CustomerPhone, &b.CancelReason, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Date, err = schedule.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking date %q: %w", date, err)
	}
	b.Start = schedule.TimeOfDay(start)
	b.End = schedule.TimeOfDay(end)
	b.Status = schedule.BookingStatus(status)
	b.Price, err = decimal.NewFromString(price)
	if err != nil {
		b.Price = decimal.Zero
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]schedule.Booking, error) {
	defer rows.Close()
	var bookings []schedule.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

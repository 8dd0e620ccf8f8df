package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

// Memory is an in-process implementation of every store the portal uses.
// All methods are safe for concurrent use; returned documents are copies.
type Memory struct {
	mu       sync.RWMutex
	options  []models.TreatmentOption
	bookings []models.Booking
	users    []models.User
	doctors  []models.Doctor
	payments []models.Payment
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- Catalog ---

func (m *Memory) ListOptions(ctx context.Context) ([]models.TreatmentOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.TreatmentOption, 0, len(m.options))
	for _, o := range m.options {
		out = append(out, copyOption(o))
	}
	return out, nil
}

func (m *Memory) GetOption(ctx context.Context, id primitive.ObjectID) (*models.TreatmentOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.options {
		if o.ID == id {
			c := copyOption(o)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("option %s: %w", id.Hex(), ErrNotFound)
}

func (m *Memory) FindOptionByName(ctx context.Context, name string) (*models.TreatmentOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.options {
		if o.Name == name {
			c := copyOption(o)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("option %q: %w", name, ErrNotFound)
}

// UpsertOption replaces the option with the same name, or appends it to the
// end of the catalog under a fresh id. The stored id is written back to opt.
func (m *Memory) UpsertOption(ctx context.Context, opt *models.TreatmentOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.options {
		if o.Name == opt.Name {
			opt.ID = o.ID
			m.options[i] = copyOption(*opt)
			return nil
		}
	}
	opt.ID = primitive.NewObjectID()
	m.options = append(m.options, copyOption(*opt))
	return nil
}

// AvailabilityOn joins the catalog with the bookings on date inside a single
// read lock, so the result reflects one consistent snapshot.
func (m *Memory) AvailabilityOn(ctx context.Context, date string) ([]models.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	booked := make(map[string]map[string]struct{})
	for _, b := range m.bookings {
		if b.AppointmentDate != date {
			continue
		}
		slots, ok := booked[b.TreatmentName]
		if !ok {
			slots = make(map[string]struct{})
			booked[b.TreatmentName] = slots
		}
		slots[b.TimeSlot] = struct{}{}
	}

	out := make([]models.Availability, 0, len(m.options))
	for _, o := range m.options {
		taken := booked[o.Name]
		open := make([]string, 0, len(o.Slots))
		for _, s := range o.Slots {
			if _, hit := taken[s]; !hit {
				open = append(open, s)
			}
		}
		out = append(out, models.Availability{ID: o.ID, Name: o.Name, Price: o.Price, Slots: open})
	}
	return out, nil
}

// --- Ledger ---

func (m *Memory) BookingsOn(ctx context.Context, date string) ([]models.Booking, error) {
	return m.filterBookings(func(b *models.Booking) bool { return b.AppointmentDate == date }), nil
}

func (m *Memory) BookingsFor(ctx context.Context, email string) ([]models.Booking, error) {
	return m.filterBookings(func(b *models.Booking) bool { return b.Email == email }), nil
}

func (m *Memory) filterBookings(keep func(*models.Booking) bool) []models.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Booking, 0)
	for i := range m.bookings {
		if keep(&m.bookings[i]) {
			out = append(out, copyBooking(m.bookings[i]))
		}
	}
	return out
}

func (m *Memory) GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bookings {
		if b.ID == id {
			c := copyBooking(b)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("booking %s: %w", id.Hex(), ErrNotFound)
}

func (m *Memory) CountBookings(ctx context.Context, key models.BookingKey) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for i := range m.bookings {
		if m.bookings[i].Key() == key {
			n++
		}
	}
	return n, nil
}

// InsertBooking enforces the (email, date, treatment) unique key atomically.
func (m *Memory) InsertBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := b.Key()
	for i := range m.bookings {
		if m.bookings[i].Key() == key {
			return fmt.Errorf("booking %s: %w", key, ErrDuplicate)
		}
	}
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	m.bookings = append(m.bookings, copyBooking(*b))
	return nil
}

// MarkPaid flips an unpaid booking to paid. A booking that is already paid
// yields ErrConflict.
func (m *Memory) MarkPaid(ctx context.Context, id primitive.ObjectID, transactionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.bookings {
		if m.bookings[i].ID == id {
			if m.bookings[i].Paid {
				return fmt.Errorf("booking %s already paid: %w", id.Hex(), ErrConflict)
			}
			paidAt := at
			m.bookings[i].Paid = true
			m.bookings[i].TransactionID = transactionID
			m.bookings[i].PaidAt = &paidAt
			return nil
		}
	}
	return fmt.Errorf("booking %s: %w", id.Hex(), ErrNotFound)
}

// --- Payments ---

func (m *Memory) InsertPayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.BookingID == p.BookingID {
			return fmt.Errorf("payment for booking %s: %w", p.BookingID.Hex(), ErrDuplicate)
		}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.payments = append(m.payments, *p)
	return nil
}

// Payments returns every recorded payment in insertion order.
func (m *Memory) Payments() []models.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.Payment(nil), m.payments...)
}

// --- Users ---

// UpsertUser creates the user on first sight with the patient role, or
// refreshes the display name of an existing one. Roles are never changed here.
func (m *Memory) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.users {
		if m.users[i].Email == u.Email {
			if u.Name != "" {
				m.users[i].Name = u.Name
			}
			out := m.users[i]
			return &out, nil
		}
	}
	stored := models.User{ID: primitive.NewObjectID(), Name: u.Name, Email: u.Email, Role: models.RolePatient}
	m.users = append(m.users, stored)
	return &stored, nil
}

func (m *Memory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(make([]models.User, 0, len(m.users)), m.users...), nil
}

func (m *Memory) PromoteUser(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].Role = models.RoleAdmin
			return nil
		}
	}
	return fmt.Errorf("user %s: %w", id.Hex(), ErrNotFound)
}

// --- Doctors ---

func (m *Memory) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(make([]models.Doctor, 0, len(m.doctors)), m.doctors...), nil
}

func (m *Memory) InsertDoctor(ctx context.Context, d *models.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.doctors {
		if existing.Email == d.Email {
			return fmt.Errorf("doctor %q: %w", d.Email, ErrDuplicate)
		}
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	m.doctors = append(m.doctors, *d)
	return nil
}

func (m *Memory) DeleteDoctor(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.doctors {
		if m.doctors[i].ID == id {
			m.doctors = append(m.doctors[:i], m.doctors[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("doctor %s: %w", id.Hex(), ErrNotFound)
}

func copyOption(o models.TreatmentOption) models.TreatmentOption {
	o.Slots = append([]string(nil), o.Slots...)
	return o
}

func copyBooking(b models.Booking) models.Booking {
	if b.PaidAt != nil {
		t := *b.PaidAt
		b.PaidAt = &t
	}
	return b
}

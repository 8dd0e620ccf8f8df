// Package store persists the portal's documents: the treatment catalog, the
// booking ledger, users, doctors and payments.
//
// Two backends are provided. Mongo is the production store. Memory keeps the
// same rules (unique keys, not-found on missing updates) behind a single
// RWMutex and backs tests and STORE_DRIVER=memory.
package store

import "errors"

var (
	// ErrNotFound is returned when the referenced document does not exist,
	// including updates that matched zero documents.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a write would violate a unique key.
	ErrDuplicate = errors.New("store: duplicate key")

	// ErrConflict is returned when a conditional update found the document
	// but its current state rules the update out.
	ErrConflict = errors.New("store: conflicting update")

	// ErrUnavailable is returned when the backend timed out or could not be
	// reached. Callers may retry.
	ErrUnavailable = errors.New("store: unavailable")
)

// Collection names shared by both backends.
const (
	OptionsCollection  = "appointmentOptions"
	BookingsCollection = "bookings"
	UsersCollection    = "users"
	DoctorsCollection  = "doctors"
	PaymentsCollection = "payments"
)

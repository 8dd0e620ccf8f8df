package services

import "errors"

var (
	ErrInvalidBooking    = errors.New("services: booking requires email, appointmentDate, timeSlot and a treatment")
	ErrUnknownTreatment  = errors.New("services: unknown treatment")
	ErrTreatmentMismatch = errors.New("services: treatmentId and treatment name refer to different options")
	ErrSlotNotOffered    = errors.New("services: time slot is not offered for this treatment")
	ErrInvalidPayment    = errors.New("services: invalid payment")
	ErrAlreadyPaid       = errors.New("services: booking is already paid")
	ErrInvalidID         = errors.New("services: invalid id")
	ErrInvalidInput      = errors.New("services: invalid input")

	// ErrForbidden is returned when the acting identity may not touch the
	// subject: not an admin, or not the owner.
	ErrForbidden = errors.New("services: forbidden")

	// ErrUpstream wraps failures of third-party collaborators.
	ErrUpstream = errors.New("services: upstream failure")
)

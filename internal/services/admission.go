package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harentsoaR/doctors-portal/internal/metrics"
	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

// BookingRequest is a patient's booking submission. The treatment may be
// referenced by id, by name, or both.
type BookingRequest struct {
	TreatmentID     string `json:"treatmentId"`
	Treatment       string `json:"treatment"`
	AppointmentDate string `json:"appointmentDate"`
	Email           string `json:"email"`
	TimeSlot        string `json:"timeSlot"`
	Patient         string `json:"patient"`
	Phone           string `json:"phone"`
}

// AdmissionResult is the outcome of Submit. A rejected booking is not an
// error: Accepted is false and Reason says why.
type AdmissionResult struct {
	Accepted  bool
	BookingID primitive.ObjectID
	Reason    string
}

// AdmissionStore resolves treatments and reads/writes the ledger.
type AdmissionStore interface {
	GetOption(ctx context.Context, id primitive.ObjectID) (*models.TreatmentOption, error)
	FindOptionByName(ctx context.Context, name string) (*models.TreatmentOption, error)
	CountBookings(ctx context.Context, key models.BookingKey) (int64, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
}

// BookingNotifier is told about every accepted booking.
type BookingNotifier interface {
	SendBookingConfirmation(b *models.Booking)
}

// Admission admits bookings while holding at most one per patient, date and
// treatment. The per-key lock closes the gap between the count and the
// insert within the lock's reach; the store's unique index is the final word.
type Admission struct {
	store    AdmissionStore
	locker   KeyLocker
	notifier BookingNotifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewAdmission(s AdmissionStore, locker KeyLocker, notifier BookingNotifier, m *metrics.Metrics, logger zerolog.Logger) *Admission {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Admission{
		store:    s,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "admission").Logger(),
		now:      time.Now,
	}
}

// ConflictReason is the message given when the patient already holds a
// booking for the treatment on date.
func ConflictReason(date string) string {
	return fmt.Sprintf("You already have a booking on %s", date)
}

func (a *Admission) Submit(ctx context.Context, req BookingRequest) (AdmissionResult, error) {
	ctx, span := tracer.Start(ctx, "admission.submit")
	defer span.End()

	req = normalize(req)
	span.SetAttributes(attribute.String("portal.date", req.AppointmentDate), attribute.String("portal.treatment", req.Treatment))

	if req.Email == "" || req.AppointmentDate == "" || req.TimeSlot == "" || (req.TreatmentID == "" && req.Treatment == "") {
		a.metrics.ObserveAdmission(metrics.AdmissionInvalid)
		return AdmissionResult{}, ErrInvalidBooking
	}

	option, err := a.resolveTreatment(ctx, req)
	if err != nil {
		a.observeFailure(err)
		return AdmissionResult{}, err
	}
	if !option.HasSlot(req.TimeSlot) {
		a.metrics.ObserveAdmission(metrics.AdmissionInvalid)
		return AdmissionResult{}, fmt.Errorf("%w: %q for %s", ErrSlotNotOffered, req.TimeSlot, option.Name)
	}

	booking := &models.Booking{
		TreatmentID:     option.ID,
		TreatmentName:   option.Name,
		Patient:         req.Patient,
		Email:           req.Email,
		Phone:           req.Phone,
		AppointmentDate: req.AppointmentDate,
		TimeSlot:        req.TimeSlot,
		Price:           option.Price,
		CreatedAt:       a.now().UTC(),
	}
	key := booking.Key()

	unlock, err := a.locker.Lock(ctx, "booking:"+key.String())
	switch {
	case err == nil:
		defer unlock()
	case ctx.Err() != nil:
		a.metrics.ObserveAdmission(metrics.AdmissionError)
		return AdmissionResult{}, fmt.Errorf("services: lock %s: %w: %v", key, store.ErrUnavailable, err)
	default:
		// The unique index still guards the insert.
		a.logger.Warn().Err(err).Str("key", key.String()).Msg("booking lock unavailable, relying on store index")
	}

	count, err := a.store.CountBookings(ctx, key)
	if err != nil {
		a.metrics.ObserveAdmission(metrics.AdmissionError)
		return AdmissionResult{}, fmt.Errorf("services: check existing booking: %w", err)
	}
	if count > 0 {
		a.metrics.ObserveAdmission(metrics.AdmissionConflict)
		a.logger.Info().Str("email", key.Email).Str("date", key.AppointmentDate).Str("treatment", option.Name).Msg("duplicate booking rejected")
		return AdmissionResult{Reason: ConflictReason(req.AppointmentDate)}, nil
	}

	if err := a.store.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			a.metrics.ObserveAdmission(metrics.AdmissionRace)
			a.logger.Warn().Str("key", key.String()).Msg("concurrent duplicate booking rejected by index")
			return AdmissionResult{Reason: ConflictReason(req.AppointmentDate)}, nil
		}
		a.metrics.ObserveAdmission(metrics.AdmissionError)
		return AdmissionResult{}, fmt.Errorf("services: insert booking: %w", err)
	}

	a.metrics.ObserveAdmission(metrics.AdmissionAccepted)
	a.logger.Info().Str("booking_id", booking.ID.Hex()).Str("email", booking.Email).
		Str("date", booking.AppointmentDate).Str("slot", booking.TimeSlot).Msg("booking accepted")
	if a.notifier != nil {
		a.notifier.SendBookingConfirmation(booking)
	}
	return AdmissionResult{Accepted: true, BookingID: booking.ID}, nil
}

// resolveTreatment maps the request's reference onto a catalog option.
// When both id and name are present they must agree.
func (a *Admission) resolveTreatment(ctx context.Context, req BookingRequest) (*models.TreatmentOption, error) {
	var (
		option *models.TreatmentOption
		err    error
	)
	if req.TreatmentID != "" {
		id, perr := primitive.ObjectIDFromHex(req.TreatmentID)
		if perr != nil {
			return nil, fmt.Errorf("%w: treatmentId %q", ErrUnknownTreatment, req.TreatmentID)
		}
		option, err = a.store.GetOption(ctx, id)
	} else {
		option, err = a.store.FindOptionByName(ctx, req.Treatment)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s%s", ErrUnknownTreatment, req.TreatmentID, req.Treatment)
	}
	if err != nil {
		return nil, fmt.Errorf("services: resolve treatment: %w", err)
	}
	if req.Treatment != "" && req.Treatment != option.Name {
		return nil, fmt.Errorf("%w: %s is %q, not %q", ErrTreatmentMismatch, option.ID.Hex(), option.Name, req.Treatment)
	}
	return option, nil
}

func (a *Admission) observeFailure(err error) {
	if errors.Is(err, ErrUnknownTreatment) || errors.Is(err, ErrTreatmentMismatch) {
		a.metrics.ObserveAdmission(metrics.AdmissionInvalid)
		return
	}
	a.metrics.ObserveAdmission(metrics.AdmissionError)
}

func normalize(req BookingRequest) BookingRequest {
	req.TreatmentID = strings.TrimSpace(req.TreatmentID)
	req.Treatment = strings.TrimSpace(req.Treatment)
	req.AppointmentDate = strings.TrimSpace(req.AppointmentDate)
	req.Email = strings.TrimSpace(req.Email)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)
	return req
}

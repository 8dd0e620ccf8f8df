package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

// PaymentStore reads bookings and records payments against them.
type PaymentStore interface {
	GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, transactionID string, at time.Time) error
	InsertPayment(ctx context.Context, p *models.Payment) error
}

// PaymentIntentCreator talks to the card processor.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (string, error)
}

// PaymentRequest is what the client posts once the card processor confirmed
// the charge.
type PaymentRequest struct {
	BookingID     string  `json:"bookingId"`
	TransactionID string  `json:"transactionId"`
	Email         string  `json:"email"`
	Price         float64 `json:"price"`
}

type PaymentService struct {
	store   PaymentStore
	intents PaymentIntentCreator
	logger  zerolog.Logger
	now     func() time.Time
}

func NewPaymentService(s PaymentStore, intents PaymentIntentCreator, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		store:   s,
		intents: intents,
		logger:  logger.With().Str("component", "payments").Logger(),
		now:     time.Now,
	}
}

// CreatePaymentIntent asks the processor for a client secret covering price
// dollars.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, price float64) (string, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return "", fmt.Errorf("%w: price must be positive", ErrInvalidPayment)
	}
	amount := int64(math.Round(price * 100))
	secret, err := s.intents.CreatePaymentIntent(ctx, amount, "usd")
	if err != nil {
		s.logger.Error().Err(err).Int64("amount_cents", amount).Msg("payment intent failed")
		return "", err
	}
	return secret, nil
}

// RecordPayment flips the booking to paid and stores the payment. The
// booking must exist and belong to payerEmail. The flip is conditional on the
// booking being unpaid, so of two concurrent payments for one booking only
// one succeeds; the other gets ErrAlreadyPaid and writes nothing. The amount
// recorded is always the booking's price.
func (s *PaymentService) RecordPayment(ctx context.Context, payerEmail string, req PaymentRequest) (primitive.ObjectID, error) {
	bookingID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.BookingID))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: booking id %q", ErrInvalidID, req.BookingID)
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: transactionId is required", ErrInvalidPayment)
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("services: load booking %s: %w", req.BookingID, err)
	}
	if booking.Email != payerEmail {
		return primitive.NilObjectID, fmt.Errorf("%w: booking %s belongs to another patient", ErrForbidden, req.BookingID)
	}
	if req.Price != 0 && req.Price != booking.Price {
		return primitive.NilObjectID, fmt.Errorf("%w: price %.2f does not match booking price %.2f", ErrInvalidPayment, req.Price, booking.Price)
	}
	if booking.Paid {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrAlreadyPaid, req.BookingID)
	}

	now := s.now().UTC()
	if err := s.store.MarkPaid(ctx, bookingID, req.TransactionID, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrAlreadyPaid, req.BookingID)
		}
		return primitive.NilObjectID, fmt.Errorf("services: mark booking paid: %w", err)
	}

	payment := &models.Payment{
		BookingID:     bookingID,
		Email:         booking.Email,
		Price:         booking.Price,
		TransactionID: req.TransactionID,
		CreatedAt:     now,
	}
	if err := s.store.InsertPayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrAlreadyPaid, req.BookingID)
		}
		s.logger.Error().Err(err).Str("booking_id", req.BookingID).Str("transaction_id", req.TransactionID).Msg("booking marked paid but payment record failed")
		return primitive.NilObjectID, fmt.Errorf("services: insert payment: %w", err)
	}

	s.logger.Info().Str("booking_id", req.BookingID).Str("payment_id", payment.ID.Hex()).Msg("payment recorded")
	return payment.ID, nil
}

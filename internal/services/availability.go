package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/harentsoaR/doctors-portal/internal/metrics"
	"github.com/harentsoaR/doctors-portal/internal/models"
)

var tracer = otel.Tracer("doctors-portal/internal/services")

// AvailabilityStore is what the resolver reads: the catalog, the bookings
// on one date, and the store-side join of the two.
type AvailabilityStore interface {
	ListOptions(ctx context.Context) ([]models.TreatmentOption, error)
	BookingsOn(ctx context.Context, date string) ([]models.Booking, error)
	AvailabilityOn(ctx context.Context, date string) ([]models.Availability, error)
}

// Resolver computes the slots still open per treatment on a date.
type Resolver struct {
	store   AvailabilityStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewResolver(store AvailabilityStore, m *metrics.Metrics, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, metrics: m, logger: logger.With().Str("component", "availability").Logger()}
}

// Resolve fetches the catalog and the day's bookings concurrently and joins
// them in process. The date is only an equality key; an empty date matches
// no bookings, so every slot comes back open.
func (r *Resolver) Resolve(ctx context.Context, date string) ([]models.Availability, error) {
	ctx, span := tracer.Start(ctx, "availability.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("portal.date", date), attribute.String("portal.strategy", "app"))
	start := time.Now()

	var (
		options  []models.TreatmentOption
		bookings []models.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		options, err = r.store.ListOptions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = r.store.BookingsOn(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("services: resolve availability on %q: %w", date, err)
	}

	out := ComputeAvailability(options, bookings)
	r.metrics.ObserveAvailability("app", time.Since(start).Seconds())
	r.logger.Debug().Str("date", date).Int("options", len(out)).Int("bookings", len(bookings)).Msg("availability resolved")
	return out, nil
}

// ResolvePushed lets the store perform the join in one query. It must agree
// with Resolve for the same state.
func (r *Resolver) ResolvePushed(ctx context.Context, date string) ([]models.Availability, error) {
	ctx, span := tracer.Start(ctx, "availability.resolve_pushed")
	defer span.End()
	span.SetAttributes(attribute.String("portal.date", date), attribute.String("portal.strategy", "store"))
	start := time.Now()

	out, err := r.store.AvailabilityOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("services: resolve availability on %q: %w", date, err)
	}
	r.metrics.ObserveAvailability("store", time.Since(start).Seconds())
	return out, nil
}

// Specialties lists the treatment names in catalog order.
func (r *Resolver) Specialties(ctx context.Context) ([]string, error) {
	options, err := r.store.ListOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: list specialties: %w", err)
	}
	names := make([]string, 0, len(options))
	for _, o := range options {
		names = append(names, o.Name)
	}
	return names, nil
}

// ComputeAvailability removes from each option every slot that a booking for
// that option's name already claims. Membership, not multiset subtraction:
// one booking is enough to close a slot. Catalog order and slot order are
// preserved, and Slots is never nil.
func ComputeAvailability(options []models.TreatmentOption, bookings []models.Booking) []models.Availability {
	out := make([]models.Availability, 0, len(options))
	for _, option := range options {
		var bookedSlots []string
		for _, b := range bookings {
			if b.TreatmentName == option.Name {
				bookedSlots = append(bookedSlots, b.TimeSlot)
			}
		}

		remaining := make([]string, 0, len(option.Slots))
		for _, slot := range option.Slots {
			if !contains(bookedSlots, slot) {
				remaining = append(remaining, slot)
			}
		}
		out = append(out, models.Availability{ID: option.ID, Name: option.Name, Price: option.Price, Slots: remaining})
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

func TestComputeAvailability(t *testing.T) {
	cleaning := models.TreatmentOption{ID: primitive.NewObjectID(), Name: "Cleaning", Price: 120, Slots: []string{"9am", "10am", "11am"}}
	xray := models.TreatmentOption{ID: primitive.NewObjectID(), Name: "X-Ray", Price: 50, Slots: []string{"10am"}}

	tests := []struct {
		name     string
		options  []models.TreatmentOption
		bookings []models.Booking
		want     map[string][]string
	}{
		{
			name:    "no bookings leaves every slot open",
			options: []models.TreatmentOption{cleaning, xray},
			want:    map[string][]string{"Cleaning": {"9am", "10am", "11am"}, "X-Ray": {"10am"}},
		},
		{
			name:    "booked slot removed only from its own treatment",
			options: []models.TreatmentOption{cleaning, xray},
			bookings: []models.Booking{
				{TreatmentName: "Cleaning", TimeSlot: "10am"},
			},
			want: map[string][]string{"Cleaning": {"9am", "11am"}, "X-Ray": {"10am"}},
		},
		{
			name:    "single slot exhausted yields empty slots",
			options: []models.TreatmentOption{xray},
			bookings: []models.Booking{
				{TreatmentName: "X-Ray", TimeSlot: "10am"},
			},
			want: map[string][]string{"X-Ray": {}},
		},
		{
			name:    "two bookings on one slot remove it once",
			options: []models.TreatmentOption{cleaning},
			bookings: []models.Booking{
				{TreatmentName: "Cleaning", TimeSlot: "9am"},
				{TreatmentName: "Cleaning", TimeSlot: "9am"},
			},
			want: map[string][]string{"Cleaning": {"10am", "11am"}},
		},
		{
			name:    "bookings for unknown treatments and slots are ignored",
			options: []models.TreatmentOption{cleaning},
			bookings: []models.Booking{
				{TreatmentName: "Braces", TimeSlot: "9am"},
				{TreatmentName: "Cleaning", TimeSlot: "4pm"},
			},
			want: map[string][]string{"Cleaning": {"9am", "10am", "11am"}},
		},
		{
			name: "empty catalog",
			want: map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAvailability(tt.options, tt.bookings)
			require.Len(t, got, len(tt.options))
			for i, a := range got {
				assert.Equal(t, tt.options[i].Name, a.Name, "catalog order")
				assert.Equal(t, tt.options[i].Price, a.Price)
				assert.Equal(t, tt.options[i].ID, a.ID)
				require.NotNil(t, a.Slots)
				assert.Equal(t, tt.want[a.Name], a.Slots)
			}
		})
	}
}

func TestComputeAvailabilityDoesNotMutateCatalog(t *testing.T) {
	options := []models.TreatmentOption{{Name: "Cleaning", Slots: []string{"9am", "10am"}}}
	ComputeAvailability(options, []models.Booking{{TreatmentName: "Cleaning", TimeSlot: "9am"}})
	assert.Equal(t, []string{"9am", "10am"}, options[0].Slots)
}

// seedRandomState fills s with a catalog and a scattering of bookings over a
// few dates. Bookings carry distinct emails so the unique key never trips.
func seedRandomState(t *testing.T, s *store.Memory, rng *rand.Rand) []string {
	t.Helper()
	ctx := context.Background()
	slots := []string{"8am", "9am", "10am", "11am", "1pm", "2pm", "3pm"}
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03"}

	var options []models.TreatmentOption
	for i := 0; i < 5; i++ {
		n := 1 + rng.Intn(len(slots))
		opt := models.TreatmentOption{Name: fmt.Sprintf("Treatment %d", i), Price: float64(50 * (i + 1)), Slots: append([]string(nil), slots[:n]...)}
		require.NoError(t, s.UpsertOption(ctx, &opt))
		options = append(options, opt)
	}
	for i := 0; i < 40; i++ {
		opt := options[rng.Intn(len(options))]
		b := &models.Booking{
			TreatmentID:     opt.ID,
			TreatmentName:   opt.Name,
			Email:           fmt.Sprintf("patient%d@x.com", i),
			AppointmentDate: dates[rng.Intn(len(dates))],
			TimeSlot:        opt.Slots[rng.Intn(len(opt.Slots))],
		}
		require.NoError(t, s.InsertBooking(ctx, b))
	}
	return append(dates, "", "2099-01-01")
}

func TestResolveStrategiesAgree(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			s := store.NewMemory()
			dates := seedRandomState(t, s, rand.New(rand.NewSource(seed)))
			r := NewResolver(s, nil, zerolog.Nop())

			for _, date := range dates {
				app, err := r.Resolve(context.Background(), date)
				require.NoError(t, err)
				pushed, err := r.ResolvePushed(context.Background(), date)
				require.NoError(t, err)
				assert.Equal(t, app, pushed, "date %q", date)
			}
		})
	}
}

func TestResolveMatchesDefinition(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	dates := seedRandomState(t, s, rand.New(rand.NewSource(42)))
	r := NewResolver(s, nil, zerolog.Nop())

	options, err := s.ListOptions(ctx)
	require.NoError(t, err)

	for _, date := range dates {
		got, err := r.Resolve(ctx, date)
		require.NoError(t, err)
		bookings, err := s.BookingsOn(ctx, date)
		require.NoError(t, err)

		for i, opt := range options {
			taken := map[string]bool{}
			for _, b := range bookings {
				if b.TreatmentName == opt.Name && b.AppointmentDate == date {
					taken[b.TimeSlot] = true
				}
			}
			want := []string{}
			for _, slot := range opt.Slots {
				if !taken[slot] {
					want = append(want, slot)
				}
			}
			assert.Equal(t, want, got[i].Slots, "%s on %q", opt.Name, date)
		}
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	seedRandomState(t, s, rand.New(rand.NewSource(7)))
	r := NewResolver(s, nil, zerolog.Nop())

	first, err := r.Resolve(context.Background(), "2024-01-02")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type failingAvailabilityStore struct {
	store.Memory
	err error
}

func (f *failingAvailabilityStore) BookingsOn(ctx context.Context, date string) ([]models.Booking, error) {
	return nil, f.err
}

func (f *failingAvailabilityStore) AvailabilityOn(ctx context.Context, date string) ([]models.Availability, error) {
	return nil, f.err
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	boom := fmt.Errorf("wrapped: %w", store.ErrUnavailable)
	r := NewResolver(&failingAvailabilityStore{err: boom}, nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "2024-01-01")
	assert.True(t, errors.Is(err, store.ErrUnavailable))

	_, err = r.ResolvePushed(context.Background(), "2024-01-01")
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestSpecialties(t *testing.T) {
	s := store.NewMemory()
	for _, name := range []string{"Cleaning", "Whitening", "X-Ray"} {
		require.NoError(t, s.UpsertOption(context.Background(), &models.TreatmentOption{Name: name}))
	}
	names, err := NewResolver(s, nil, zerolog.Nop()).Specialties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cleaning", "Whitening", "X-Ray"}, names)
}

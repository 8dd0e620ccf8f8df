package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

type DoctorStore interface {
	ListDoctors(ctx context.Context) ([]models.Doctor, error)
	InsertDoctor(ctx context.Context, d *models.Doctor) error
	DeleteDoctor(ctx context.Context, id primitive.ObjectID) error
}

// Roster manages the clinic's doctors.
type Roster struct {
	store DoctorStore
}

func NewRoster(s DoctorStore) *Roster {
	return &Roster{store: s}
}

func (r *Roster) List(ctx context.Context) ([]models.Doctor, error) {
	doctors, err := r.store.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: list doctors: %w", err)
	}
	return doctors, nil
}

func (r *Roster) Add(ctx context.Context, d *models.Doctor) error {
	if d.Name == "" || d.Email == "" || d.Specialty == "" {
		return fmt.Errorf("%w: doctor requires name, email and specialty", ErrInvalidInput)
	}
	d.ID = primitive.NilObjectID
	if err := r.store.InsertDoctor(ctx, d); err != nil {
		return fmt.Errorf("services: add doctor: %w", err)
	}
	return nil
}

func (r *Roster) Remove(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: doctor id %q", ErrInvalidID, id)
	}
	if err := r.store.DeleteDoctor(ctx, oid); err != nil {
		return fmt.Errorf("services: remove doctor %s: %w", id, err)
	}
	return nil
}

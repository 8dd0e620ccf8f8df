package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

type CatalogStore interface {
	UpsertOption(ctx context.Context, opt *models.TreatmentOption) error
}

// Catalog maintains treatment options. It is admin tooling; the booking flow
// never writes here.
type Catalog struct {
	store CatalogStore
}

func NewCatalog(s CatalogStore) *Catalog {
	return &Catalog{store: s}
}

// Upsert creates or replaces the option with opt.Name. Blank and repeated
// slot labels are dropped; the first occurrence keeps its position.
func (c *Catalog) Upsert(ctx context.Context, opt *models.TreatmentOption) error {
	opt.Name = strings.TrimSpace(opt.Name)
	if opt.Name == "" {
		return fmt.Errorf("%w: treatment name is required", ErrInvalidInput)
	}
	if opt.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(opt.Slots))
	slots := make([]string, 0, len(opt.Slots))
	for _, s := range opt.Slots {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		slots = append(slots, s)
	}
	opt.Slots = slots

	if err := c.store.UpsertOption(ctx, opt); err != nil {
		return fmt.Errorf("services: upsert option %q: %w", opt.Name, err)
	}
	return nil
}

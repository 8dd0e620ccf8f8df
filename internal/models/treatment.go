package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// TreatmentOption is a catalog entry. Slots keep the order the clinic
// advertises them in.
type TreatmentOption struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name  string             `bson:"name" json:"name"`
	Price float64            `bson:"price" json:"price"`
	Slots []string           `bson:"slots" json:"slots"`
}

// HasSlot reports whether slot is one of the option's advertised slots.
func (o *TreatmentOption) HasSlot(slot string) bool {
	for _, s := range o.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Availability is a catalog entry with the slots still open on one date.
type Availability struct {
	ID    primitive.ObjectID `bson:"_id" json:"_id"`
	Name  string             `bson:"name" json:"name"`
	Price float64            `bson:"price" json:"price"`
	Slots []string           `bson:"slots" json:"slots"`
}

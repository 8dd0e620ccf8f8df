package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Booking struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	TreatmentID     primitive.ObjectID `bson:"treatmentId" json:"treatmentId"`
	TreatmentName   string             `bson:"treatmentName" json:"treatment"` // denormalized from the catalog
	Patient         string             `bson:"patient" json:"patient"`
	Email           string             `bson:"email" json:"email"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	AppointmentDate string             `bson:"appointmentDate" json:"appointmentDate"`
	TimeSlot        string             `bson:"timeSlot" json:"timeSlot"`
	Price           float64            `bson:"price" json:"price"`
	Paid            bool               `bson:"paid" json:"paid"`
	TransactionID   string             `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	PaidAt          *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}

// Key returns the identity a patient may hold at most one booking for.
func (b *Booking) Key() BookingKey {
	return BookingKey{Email: b.Email, AppointmentDate: b.AppointmentDate, TreatmentID: b.TreatmentID}
}

// BookingKey is the (patient, date, treatment) triple.
type BookingKey struct {
	Email           string
	AppointmentDate string
	TreatmentID     primitive.ObjectID
}

func (k BookingKey) String() string {
	return k.Email + "|" + k.AppointmentDate + "|" + k.TreatmentID.Hex()
}

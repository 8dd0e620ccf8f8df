package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

// Mongo stores documents in a MongoDB database.
type Mongo struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewMongo wraps db. Every call runs under timeout; zero disables it.
func NewMongo(db *mongo.Database, timeout time.Duration) *Mongo {
	return &Mongo{db: db, timeout: timeout}
}

// EnsureIndexes creates the unique indexes the portal relies on. The booking
// index is the authoritative one-booking-per-patient-date-treatment guard.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	indexes := map[string]mongo.IndexModel{
		BookingsCollection: {
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "appointmentDate", Value: 1}, {Key: "treatmentId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_patient_date_treatment"),
		},
		UsersCollection: {
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		OptionsCollection: {
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_name"),
		},
		PaymentsCollection: {
			Keys:    bson.D{{Key: "bookingId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_booking"),
		},
		DoctorsCollection: {
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
	}
	for coll, model := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("store: create index on %s: %w", coll, translate(err))
		}
	}
	// Availability lookups filter bookings by name and date.
	_, err := s.db.Collection(BookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "treatmentName", Value: 1}, {Key: "appointmentDate", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("store: create availability index: %w", translate(err))
	}
	return nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()
	return translate(s.db.Client().Ping(ctx, nil))
}

// readCtx bounds a read by the store timeout while still honouring the
// caller's cancellation.
func (s *Mongo) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// writeCtx detaches a write from the caller's cancellation so a client
// disconnect cannot abandon it half way. The store timeout still applies.
func (s *Mongo) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.readCtx(context.WithoutCancel(ctx))
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, translate(err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var doc T
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

// --- Catalog ---

func (s *Mongo) ListOptions(ctx context.Context) ([]models.TreatmentOption, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	opts, err := findAll[models.TreatmentOption](ctx, s.db.Collection(OptionsCollection), bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("store: list options: %w", err)
	}
	return opts, nil
}

func (s *Mongo) GetOption(ctx context.Context, id primitive.ObjectID) (*models.TreatmentOption, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	opt, err := findOne[models.TreatmentOption](ctx, s.db.Collection(OptionsCollection), bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("store: get option %s: %w", id.Hex(), err)
	}
	return opt, nil
}

func (s *Mongo) FindOptionByName(ctx context.Context, name string) (*models.TreatmentOption, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	opt, err := findOne[models.TreatmentOption](ctx, s.db.Collection(OptionsCollection), bson.M{"name": name})
	if err != nil {
		return nil, fmt.Errorf("store: find option %q: %w", name, err)
	}
	return opt, nil
}

func (s *Mongo) UpsertOption(ctx context.Context, opt *models.TreatmentOption) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"price": opt.Price, "slots": opt.Slots}}
	res := s.db.Collection(OptionsCollection).FindOneAndUpdate(ctx, bson.M{"name": opt.Name}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))
	var stored models.TreatmentOption
	if err := res.Decode(&stored); err != nil {
		return fmt.Errorf("store: upsert option %q: %w", opt.Name, translate(err))
	}
	opt.ID = stored.ID
	return nil
}

// AvailabilityOn pushes the catalog/ledger join into one aggregation. Slots
// are filtered against the booked set with $filter rather than
// $setDifference so catalog slot order is kept.
func (s *Mongo) AvailabilityOn(ctx context.Context, date string) ([]models.Availability, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	cursor, err := s.db.Collection(OptionsCollection).Aggregate(ctx, availabilityPipeline(date))
	if err != nil {
		return nil, fmt.Errorf("store: availability on %q: %w", date, translate(err))
	}
	defer cursor.Close(ctx)

	out := make([]models.Availability, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode availability: %w", translate(err))
	}
	for i := range out {
		if out[i].Slots == nil {
			out[i].Slots = []string{}
		}
	}
	return out, nil
}

func availabilityPipeline(date string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: BookingsCollection},
			{Key: "let", Value: bson.D{{Key: "optionName", Value: "$name"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$treatmentName", "$$optionName"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$appointmentDate", bson.D{{Key: "$literal", Value: date}}}}},
				}}}}}}},
				bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "timeSlot", Value: 1}}}},
			}},
			{Key: "as", Value: "booked"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "name", Value: 1},
			{Key: "price", Value: 1},
			{Key: "slots", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$slots", bson.A{}}}}},
				{Key: "as", Value: "slot"},
				{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
					bson.D{{Key: "$in", Value: bson.A{"$$slot", "$booked.timeSlot"}}},
				}}}},
			}}}},
		}}},
	}
}

// --- Ledger ---

func (s *Mongo) BookingsOn(ctx context.Context, date string) ([]models.Booking, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	bookings, err := findAll[models.Booking](ctx, s.db.Collection(BookingsCollection), bson.M{"appointmentDate": date})
	if err != nil {
		return nil, fmt.Errorf("store: bookings on %q: %w", date, err)
	}
	return bookings, nil
}

func (s *Mongo) BookingsFor(ctx context.Context, email string) ([]models.Booking, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	bookings, err := findAll[models.Booking](ctx, s.db.Collection(BookingsCollection), bson.M{"email": email},
		options.Find().SetSort(bson.D{{Key: "appointmentDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("store: bookings for %q: %w", email, err)
	}
	return bookings, nil
}

func (s *Mongo) GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	b, err := findOne[models.Booking](ctx, s.db.Collection(BookingsCollection), bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("store: get booking %s: %w", id.Hex(), err)
	}
	return b, nil
}

func (s *Mongo) CountBookings(ctx context.Context, key models.BookingKey) (int64, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	n, err := s.db.Collection(BookingsCollection).CountDocuments(ctx, bson.M{
		"email":           key.Email,
		"appointmentDate": key.AppointmentDate,
		"treatmentId":     key.TreatmentID,
	})
	if err != nil {
		return 0, fmt.Errorf("store: count bookings %s: %w", key, translate(err))
	}
	return n, nil
}

func (s *Mongo) InsertBooking(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if _, err := s.db.Collection(BookingsCollection).InsertOne(ctx, b); err != nil {
		return fmt.Errorf("store: insert booking %s: %w", b.Key(), translate(err))
	}
	return nil
}

// MarkPaid flips an unpaid booking to paid. The paid flag is part of the
// filter, so of two concurrent callers only one matches; the other gets
// ErrConflict.
func (s *Mongo) MarkPaid(ctx context.Context, id primitive.ObjectID, transactionID string, at time.Time) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	bookings := s.db.Collection(BookingsCollection)
	result, err := bookings.UpdateOne(ctx, bson.M{"_id": id, "paid": bson.M{"$ne": true}}, bson.M{
		"$set": bson.M{"paid": true, "transactionId": transactionID, "paidAt": at},
	})
	if err != nil {
		return fmt.Errorf("store: mark booking %s paid: %w", id.Hex(), translate(err))
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: either the booking is gone or someone paid it first.
	n, err := bookings.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: mark booking %s paid: %w", id.Hex(), translate(err))
	}
	if n > 0 {
		return fmt.Errorf("store: booking %s already paid: %w", id.Hex(), ErrConflict)
	}
	return fmt.Errorf("store: mark booking %s paid: %w", id.Hex(), ErrNotFound)
}

// --- Payments ---

func (s *Mongo) InsertPayment(ctx context.Context, p *models.Payment) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.db.Collection(PaymentsCollection).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("store: insert payment: %w", translate(err))
	}
	return nil
}

// --- Users ---

func (s *Mongo) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	update := bson.M{"$setOnInsert": bson.M{"role": models.RolePatient}}
	if u.Name != "" {
		update["$set"] = bson.M{"name": u.Name}
	}
	res := s.db.Collection(UsersCollection).FindOneAndUpdate(ctx, bson.M{"email": u.Email}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))
	var stored models.User
	if err := res.Decode(&stored); err != nil {
		return nil, fmt.Errorf("store: upsert user %q: %w", u.Email, translate(err))
	}
	return &stored, nil
}

func (s *Mongo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	u, err := findOne[models.User](ctx, s.db.Collection(UsersCollection), bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("store: find user %q: %w", email, err)
	}
	return u, nil
}

func (s *Mongo) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	users, err := findAll[models.User](ctx, s.db.Collection(UsersCollection), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

func (s *Mongo) PromoteUser(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	result, err := s.db.Collection(UsersCollection).UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": models.RoleAdmin}})
	if err != nil {
		return fmt.Errorf("store: promote user %s: %w", id.Hex(), translate(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("store: promote user %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// --- Doctors ---

func (s *Mongo) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	doctors, err := findAll[models.Doctor](ctx, s.db.Collection(DoctorsCollection), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Mongo) InsertDoctor(ctx context.Context, d *models.Doctor) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if _, err := s.db.Collection(DoctorsCollection).InsertOne(ctx, d); err != nil {
		return fmt.Errorf("store: insert doctor %q: %w", d.Email, translate(err))
	}
	return nil
}

func (s *Mongo) DeleteDoctor(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	result, err := s.db.Collection(DoctorsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: delete doctor %s: %w", id.Hex(), translate(err))
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("store: delete doctor %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

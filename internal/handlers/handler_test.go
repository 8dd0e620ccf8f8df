package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
	"github.com/harentsoaR/doctors-portal/internal/utils"
)

type testServer struct {
	router   *gin.Engine
	store    *store.Memory
	tokens   *utils.TokenManager
	cleaning models.TreatmentOption
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zerolog.Nop()

	s := store.NewMemory()
	cleaning := models.TreatmentOption{Name: "Cleaning", Price: 120, Slots: []string{"9am", "10am"}}
	require.NoError(t, s.UpsertOption(ctx, &cleaning))

	tokens, err := utils.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	h := &Handler{
		Resolver:  services.NewResolver(s, nil, logger),
		Admission: services.NewAdmission(s, services.NewLocalLocker(), nil, nil, logger),
		Users:     services.NewUserService(s, logger),
		Catalog:   services.NewCatalog(s),
		Roster:    services.NewRoster(s),
		Payments:  services.NewPaymentService(s, services.NewStripeClient("", logger), logger),
		Bookings:  s,
		Tokens:    tokens,
		Store:     s,
		Logger:    logger,
	}
	r := gin.New()
	h.Register(r)
	return &testServer{router: r, store: s, tokens: tokens, cleaning: cleaning}
}

// user registers email (promoting it when admin is set) and returns a token.
func (ts *testServer) user(t *testing.T, email string, admin bool) string {
	t.Helper()
	u, err := ts.store.UpsertUser(context.Background(), &models.User{Email: email})
	require.NoError(t, err)
	if admin {
		require.NoError(t, ts.store.PromoteUser(context.Background(), u.ID))
	}
	token, err := ts.tokens.Issue(email)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestBookingFlowEndToEnd(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.user(t, "a@x.com", false)

	var options []models.Availability
	w := ts.do(t, http.MethodGet, "/appointmentOptions?date=2024-01-01", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &options)
	require.Len(t, options, 1)
	assert.Equal(t, []string{"9am", "10am"}, options[0].Slots)

	booking := gin.H{"treatment": "Cleaning", "treatmentId": ts.cleaning.ID.Hex(), "appointmentDate": "2024-01-01", "email": "a@x.com", "timeSlot": "9am", "patient": "Ann"}
	w = ts.do(t, http.MethodPost, "/bookings", token, booking)
	require.Equal(t, http.StatusOK, w.Code)
	var accepted struct {
		Acknowledged bool   `json:"acknowledged"`
		InsertedID   string `json:"insertedId"`
	}
	decode(t, w, &accepted)
	assert.True(t, accepted.Acknowledged)
	require.NotEmpty(t, accepted.InsertedID)

	w = ts.do(t, http.MethodGet, "/appointmentOptions?date=2024-01-01", "", nil)
	decode(t, w, &options)
	assert.Equal(t, []string{"10am"}, options[0].Slots)

	w = ts.do(t, http.MethodPost, "/bookings", token, booking)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"acknowledged":false,"message":"You already have a booking on 2024-01-01"}`, w.Body.String())

	var mine []models.Booking
	w = ts.do(t, http.MethodGet, "/bookings?email=a@x.com", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "Cleaning", mine[0].TreatmentName)
	assert.Equal(t, accepted.InsertedID, mine[0].ID.Hex())
}

func TestAvailabilityStrategiesAgreeOverHTTP(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	xray := models.TreatmentOption{Name: "X-Ray", Price: 50, Slots: []string{"10am"}}
	require.NoError(t, ts.store.UpsertOption(ctx, &xray))
	require.NoError(t, ts.store.InsertBooking(ctx, &models.Booking{TreatmentID: xray.ID, TreatmentName: "X-Ray", Email: "a@x.com", AppointmentDate: "2024-01-01", TimeSlot: "10am"}))

	for _, date := range []string{"2024-01-01", "2024-01-02", ""} {
		v1 := ts.do(t, http.MethodGet, "/appointmentOptions?date="+date, "", nil)
		v2 := ts.do(t, http.MethodGet, "/v2/appointmentOptions?date="+date, "", nil)
		require.Equal(t, http.StatusOK, v1.Code)
		require.Equal(t, http.StatusOK, v2.Code)
		assert.JSONEq(t, v1.Body.String(), v2.Body.String(), "date %q", date)
	}

	w := ts.do(t, http.MethodGet, "/appointmentOptions?date=2024-01-01", "", nil)
	assert.Contains(t, w.Body.String(), `"name":"X-Ray","price":50,"slots":[]`)

	w = ts.do(t, http.MethodGet, "/appointmentSpecialty", "", nil)
	assert.JSONEq(t, `[{"name":"Cleaning"},{"name":"X-Ray"}]`, w.Body.String())
}

func TestBookingAccessChecks(t *testing.T) {
	ts := setupTestServer(t)
	owner := ts.user(t, "a@x.com", false)
	other := ts.user(t, "b@x.com", false)
	admin := ts.user(t, "root@x.com", true)

	w := ts.do(t, http.MethodPost, "/bookings", owner, gin.H{"treatment": "Cleaning", "appointmentDate": "2024-01-01", "email": "a@x.com", "timeSlot": "9am"})
	var res struct {
		InsertedID string `json:"insertedId"`
	}
	decode(t, w, &res)
	path := "/bookings/" + res.InsertedID

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"list without token", http.MethodGet, "/bookings?email=a@x.com", "", nil, http.StatusUnauthorized},
		{"list with bad token", http.MethodGet, "/bookings?email=a@x.com", "nope", nil, http.StatusForbidden},
		{"list someone else's", http.MethodGet, "/bookings?email=a@x.com", other, nil, http.StatusForbidden},
		{"book for someone else", http.MethodPost, "/bookings", other, gin.H{"treatment": "Cleaning", "appointmentDate": "2024-01-02", "email": "a@x.com", "timeSlot": "9am"}, http.StatusForbidden},
		{"get own booking", http.MethodGet, path, owner, nil, http.StatusOK},
		{"get as admin", http.MethodGet, path, admin, nil, http.StatusOK},
		{"get as stranger", http.MethodGet, path, other, nil, http.StatusForbidden},
		{"get malformed id", http.MethodGet, "/bookings/xyz", owner, nil, http.StatusBadRequest},
		{"missing booking looks forbidden to patients", http.MethodGet, "/bookings/" + primitive.NewObjectID().Hex(), owner, nil, http.StatusForbidden},
		{"missing booking and foreign booking answer alike", http.MethodGet, "/bookings/" + primitive.NewObjectID().Hex(), other, nil, http.StatusForbidden},
		{"missing booking as admin", http.MethodGet, "/bookings/" + primitive.NewObjectID().Hex(), admin, nil, http.StatusNotFound},
		{"unknown treatment", http.MethodPost, "/bookings", owner, gin.H{"treatment": "Braces", "appointmentDate": "2024-01-01", "email": "a@x.com", "timeSlot": "9am"}, http.StatusBadRequest},
		{"slot not offered", http.MethodPost, "/bookings", owner, gin.H{"treatment": "Cleaning", "appointmentDate": "2024-01-03", "email": "a@x.com", "timeSlot": "5pm"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.do(t, tt.method, tt.path, tt.token, tt.body).Code)
		})
	}
}

func TestUsersAndTokens(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/jwt?email=a@x.com", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"accessToken":""}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/users", "", gin.H{"name": "Ann", "email": "a@x.com", "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/users/admin/a@x.com", "", nil)
	assert.JSONEq(t, `{"isAdmin":false}`, w.Body.String(), "role in the body is ignored")

	w = ts.do(t, http.MethodGet, "/jwt?email=a@x.com", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, w, &body)
	claims, err := ts.tokens.Validate(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)

	w = ts.do(t, http.MethodPost, "/users", "", gin.H{"name": "No email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := setupTestServer(t)
	patient := ts.user(t, "a@x.com", false)
	admin := ts.user(t, "root@x.com", true)
	target, err := ts.store.FindUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	t.Run("non-admin is forbidden before ids are parsed", func(t *testing.T) {
		for _, path := range []string{"/users/admin/" + target.ID.Hex(), "/users/admin/not-an-id", "/users/admin/" + primitive.NewObjectID().Hex()} {
			assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPut, path, patient, nil).Code, path)
		}
		assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, "/doctors/not-an-id", patient, nil).Code)
		assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/users", patient, nil).Code)
		assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/appointmentOptions", patient, gin.H{"name": "Whitening"}).Code)
	})

	t.Run("admin promotes", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/users/admin/not-an-id", admin, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/users/admin/"+primitive.NewObjectID().Hex(), admin, nil).Code)
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/users/admin/"+target.ID.Hex(), admin, nil).Code)

		w := ts.do(t, http.MethodGet, "/users/admin/a@x.com", "", nil)
		assert.JSONEq(t, `{"isAdmin":true}`, w.Body.String())

		var users []models.User
		w = ts.do(t, http.MethodGet, "/users", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &users)
		assert.Len(t, users, 2)
	})

	t.Run("doctor roster", func(t *testing.T) {
		doctor := gin.H{"name": "Dr. Lee", "email": "lee@clinic.com", "specialty": "Cleaning"}
		w := ts.do(t, http.MethodPost, "/doctors", admin, doctor)
		require.Equal(t, http.StatusCreated, w.Code)
		var created struct {
			InsertedID string `json:"insertedId"`
		}
		decode(t, w, &created)

		assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/doctors", admin, doctor).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/doctors", admin, gin.H{"name": "Dr. No"}).Code)

		var doctors []models.Doctor
		decode(t, ts.do(t, http.MethodGet, "/doctors", admin, nil), &doctors)
		assert.Len(t, doctors, 1)

		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/doctors/"+created.InsertedID, admin, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/doctors/"+created.InsertedID, admin, nil).Code)
	})

	t.Run("catalog upsert", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/appointmentOptions", admin, gin.H{"name": "Whitening", "price": 300, "slots": []string{"1pm", "2pm"}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/appointmentOptions", admin, gin.H{"name": ""}).Code)

		var options []models.Availability
		decode(t, ts.do(t, http.MethodGet, "/appointmentOptions?date=2024-01-01", "", nil), &options)
		require.Len(t, options, 2)
		assert.Equal(t, "Whitening", options[1].Name)
		assert.Equal(t, []string{"1pm", "2pm"}, options[1].Slots)

		forged := primitive.NewObjectID()
		w = ts.do(t, http.MethodPost, "/appointmentOptions", admin, gin.H{"_id": forged.Hex(), "name": "Bridge", "slots": []string{"3pm"}})
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, ts.do(t, http.MethodGet, "/appointmentOptions?date=2024-01-01", "", nil), &options)
		require.Len(t, options, 3)
		assert.NotEqual(t, forged, options[2].ID)
	})
}

func TestPayments(t *testing.T) {
	ts := setupTestServer(t)
	owner := ts.user(t, "a@x.com", false)
	other := ts.user(t, "b@x.com", false)

	w := ts.do(t, http.MethodPost, "/bookings", owner, gin.H{"treatment": "Cleaning", "appointmentDate": "2024-01-01", "email": "a@x.com", "timeSlot": "9am"})
	var res struct {
		InsertedID string `json:"insertedId"`
	}
	decode(t, w, &res)

	w = ts.do(t, http.MethodPost, "/create-payment-intent", owner, gin.H{"price": 120})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clientSecret")
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/create-payment-intent", owner, gin.H{"price": 0}).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/create-payment-intent", "", gin.H{"price": 10}).Code)

	payment := gin.H{"bookingId": res.InsertedID, "transactionId": "txn_1", "price": 120}
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/payments", other, payment).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/payments", owner, gin.H{"bookingId": primitive.NewObjectID().Hex(), "transactionId": "t"}).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/payments", owner, payment).Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/payments", owner, payment).Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/payments", owner, gin.H{"bookingId": res.InsertedID, "transactionId": "t", "price": 1}).Code)

	var b models.Booking
	decode(t, ts.do(t, http.MethodGet, "/bookings/"+res.InsertedID, owner, nil), &b)
	assert.True(t, b.Paid)
	assert.Equal(t, "txn_1", b.TransactionID)
}

func TestRootAndHealth(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, "doctors portal server running", w.Body.String())

	w = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{Logger: zerolog.Nop()}

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", store.ErrNotFound), http.StatusNotFound},
		{services.ErrInvalidBooking, http.StatusBadRequest},
		{fmt.Errorf("x: %w", services.ErrSlotNotOffered), http.StatusBadRequest},
		{store.ErrDuplicate, http.StatusConflict},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("x: %w", store.ErrUnavailable), http.StatusServiceUnavailable},
		{services.ErrUpstream, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			h.respondError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h.respondError(c, store.ErrUnavailable)
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}

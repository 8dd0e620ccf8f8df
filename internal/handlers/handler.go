package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/middleware"
	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
	"github.com/harentsoaR/doctors-portal/internal/utils"
)

// BookingReader is the read side of the ledger the handlers query directly.
type BookingReader interface {
	BookingsFor(ctx context.Context, email string) ([]models.Booking, error)
	GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries every service the routes need.
type Handler struct {
	Resolver  *services.Resolver
	Admission *services.Admission
	Users     *services.UserService
	Catalog   *services.Catalog
	Roster    *services.Roster
	Payments  *services.PaymentService
	Bookings  BookingReader
	Tokens    *utils.TokenManager
	Store     Pinger
	Logger    zerolog.Logger
}

// Register mounts every route on r. Admin routes check the role before any
// handler parses path parameters.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/healthz", h.Health)

	r.GET("/appointmentOptions", h.GetAppointmentOptions)
	r.GET("/v2/appointmentOptions", h.GetAppointmentOptionsV2)
	r.GET("/appointmentSpecialty", h.GetAppointmentSpecialty)

	r.POST("/users", h.RegisterUser)
	r.GET("/users/admin/:email", h.IsAdmin)
	r.GET("/jwt", h.IssueToken)

	authed := r.Group("/", middleware.VerifyJWT(h.Tokens))
	authed.GET("/bookings", h.GetBookings)
	authed.GET("/bookings/:id", h.GetBooking)
	authed.POST("/bookings", h.CreateBooking)
	authed.POST("/create-payment-intent", h.CreatePaymentIntent)
	authed.POST("/payments", h.RecordPayment)

	admin := authed.Group("/", middleware.VerifyAdmin(h.Users, h.Logger))
	admin.POST("/appointmentOptions", h.UpsertAppointmentOption)
	admin.GET("/users", h.ListUsers)
	admin.PUT("/users/admin/:id", h.PromoteUser)
	admin.GET("/doctors", h.ListDoctors)
	admin.POST("/doctors", h.AddDoctor)
	admin.DELETE("/doctors/:id", h.DeleteDoctor)
}

func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, "doctors portal server running")
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.Logger.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service and store errors onto HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, services.ErrInvalidBooking),
		errors.Is(err, services.ErrUnknownTreatment),
		errors.Is(err, services.ErrTreatmentMismatch),
		errors.Is(err, services.ErrSlotNotOffered),
		errors.Is(err, services.ErrInvalidPayment),
		errors.Is(err, services.ErrInvalidID),
		errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, services.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden access"})
	case errors.Is(err, store.ErrUnavailable):
		h.Logger.Warn().Err(err).Str("path", c.FullPath()).Msg("store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "service temporarily unavailable", "retryable": true})
	case errors.Is(err, services.ErrUpstream):
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("upstream failure")
		c.JSON(http.StatusBadGateway, gin.H{"message": "upstream service failed"})
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/doctors-portal/internal/middleware"
	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

// --- AVAILABILITY ---

// GetAppointmentOptions joins catalog and bookings in the application.
// An absent date matches no bookings, so every slot is open.
func (h *Handler) GetAppointmentOptions(c *gin.Context) {
	options, err := h.Resolver.Resolve(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// GetAppointmentOptionsV2 returns the same result computed by the store.
func (h *Handler) GetAppointmentOptionsV2(c *gin.Context) {
	options, err := h.Resolver.ResolvePushed(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

func (h *Handler) GetAppointmentSpecialty(c *gin.Context) {
	names, err := h.Resolver.Specialties(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	specialties := make([]gin.H, 0, len(names))
	for _, n := range names {
		specialties = append(specialties, gin.H{"name": n})
	}
	c.JSON(http.StatusOK, specialties)
}

func (h *Handler) UpsertAppointmentOption(c *gin.Context) {
	var opt models.TreatmentOption
	if err := c.ShouldBindJSON(&opt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if err := h.Catalog.Upsert(c.Request.Context(), &opt); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opt)
}

// --- BOOKINGS ---

// GetBookings lists the caller's own bookings. The email query must match
// the token.
func (h *Handler) GetBookings(c *gin.Context) {
	email := c.Query("email")
	if email != middleware.Email(c) {
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden access"})
		return
	}
	bookings, err := h.Bookings.BookingsFor(c.Request.Context(), email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// GetBooking returns one booking to its owner or to an admin. Anyone else
// gets 403 whether or not the id exists.
func (h *Handler) GetBooking(c *gin.Context) {
	ctx := c.Request.Context()
	email := middleware.Email(c)

	id, err := parseObjectID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	booking, err := h.Bookings.GetBooking(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.respondError(c, err)
		return
	}
	if err == nil && booking.Email == email {
		c.JSON(http.StatusOK, booking)
		return
	}

	admin, aerr := h.Users.IsAdmin(ctx, email)
	if aerr != nil {
		h.respondError(c, aerr)
		return
	}
	if !admin {
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden access"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CreateBooking submits a booking for the token's patient. Conflicts are a
// normal 200 response with acknowledged=false.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req services.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if req.Email != middleware.Email(c) {
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden access"})
		return
	}

	res, err := h.Admission.Submit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !res.Accepted {
		c.JSON(http.StatusOK, gin.H{"acknowledged": false, "message": res.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "insertedId": res.BookingID.Hex()})
}

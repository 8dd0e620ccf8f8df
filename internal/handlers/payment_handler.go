package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/doctors-portal/internal/middleware"
	"github.com/harentsoaR/doctors-portal/internal/services"
)

func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	secret, err := h.Payments.CreatePaymentIntent(c.Request.Context(), req.Price)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": secret})
}

// RecordPayment stores a confirmed charge and marks the booking paid.
func (h *Handler) RecordPayment(c *gin.Context) {
	var req services.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	id, err := h.Payments.RecordPayment(c.Request.Context(), middleware.Email(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "insertedId": id.Hex()})
}

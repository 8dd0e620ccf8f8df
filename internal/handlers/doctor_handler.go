package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.Roster.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

func (h *Handler) AddDoctor(c *gin.Context) {
	var doctor models.Doctor
	if err := c.ShouldBindJSON(&doctor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := h.Roster.Add(c.Request.Context(), &doctor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"acknowledged": true, "insertedId": doctor.ID.Hex()})
}

func (h *Handler) DeleteDoctor(c *gin.Context) {
	if err := h.Roster.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "deletedCount": 1})
}

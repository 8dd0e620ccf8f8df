package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/middleware"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

type RegisterUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required,email"`
}

// RegisterUser records a user after they sign in with the identity provider.
// Posting again with the same email refreshes the name and keeps the role.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := h.Users.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "insertedId": user.ID.Hex(), "user": user})
}

func (h *Handler) IsAdmin(c *gin.Context) {
	ok, err := h.Users.IsAdmin(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isAdmin": ok})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// PromoteUser makes the target an admin. The target must exist.
func (h *Handler) PromoteUser(c *gin.Context) {
	if err := h.Users.Promote(c.Request.Context(), middleware.Email(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "matchedCount": 1})
}

// IssueToken hands out an access token to registered users only.
func (h *Handler) IssueToken(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusForbidden, gin.H{"accessToken": ""})
		return
	}

	_, err := h.Users.Find(c.Request.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusForbidden, gin.H{"accessToken": ""})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.Tokens.Issue(email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

func parseObjectID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", services.ErrInvalidID, raw)
	}
	return id, nil
}

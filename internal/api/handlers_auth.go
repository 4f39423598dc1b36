package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payout-ledger/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin authenticates a staff user and returns a bearer token.
// POST /api/auth/login
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "email and password are required")
		return
	}

	token, user, err := s.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			errorResponse(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "login failed")
		return
	}

	successResponse(c, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"role":     user.Role,
			"is_admin": user.IsAdmin,
		},
	})
}

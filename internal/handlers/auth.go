package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type AuthHandler struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService) *AuthHandler {
	return &AuthHandler{log: log.With("handler", "AuthHandler"), authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Name      string `json:"name,omitempty"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	first, last := req.FirstName, req.LastName
	if first == "" && last == "" {
		first, last = splitName(req.Name)
	}
	user := types.User{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: first,
		LastName:  last,
	}
	if err := ah.authService.RegisterUser(c.Request.Context(), &user); err != nil {
		respondError(c, ah.log, "Failed to register user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	accessToken, refreshToken, err := ah.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, ah.log, "Failed to log in", err)
		return
	}
	ah.tokenResponse(c, accessToken, refreshToken)
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	accessToken, refreshToken, err := ah.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, ah.log, "Failed to refresh session", err)
		return
	}
	ah.tokenResponse(c, accessToken, refreshToken)
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if err := ah.authService.Logout(c.Request.Context()); err != nil {
		respondError(c, ah.log, "Failed to log out", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (ah *AuthHandler) tokenResponse(c *gin.Context, accessToken, refreshToken string) {
	expiresIn := int(ah.authService.GetAccessTTL().Seconds())
	c.JSON(http.StatusOK, gin.H{"access_token": accessToken, "refresh_token": refreshToken, "expires_in": expiresIn})
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"predictive-league/internal/auth"
	"predictive-league/internal/logging"
	"predictive-league/internal/repository"
	"predictive-league/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginMessage issues a one-time login challenge the wallet must personal_sign.
// GET /auth/message?wallet_address=0x...
func (h *AuthHandler) LoginMessage(c *gin.Context) {
	wallet := c.Query("wallet_address")
	if !common.IsHexAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	message, err := h.authService.IssueLoginChallenge(c.Request.Context(), common.HexToAddress(wallet))
	if err != nil {
		logging.HTTP.Error().Err(err).Msg("failed to issue login challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue login challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     message,
		"ttl_seconds": int64(services.LoginChallengeTTL / time.Second),
	})
}

// WalletLogin redeems the wallet's login challenge with its EIP-191 signature.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !common.IsHexAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	wallet := common.HexToAddress(req.WalletAddress)

	user, err := h.authService.LoginWithSignature(c.Request.Context(), wallet, req.Signature)
	switch {
	case errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, services.ErrNoLoginChallenge),
		errors.Is(err, services.ErrLoginChallengeExpired):
		logging.HTTP.Debug().Err(err).Str("wallet", wallet.Hex()).Msg("wallet login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		logging.HTTP.Error().Err(err).Msg("wallet login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.WalletAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout handles user logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}

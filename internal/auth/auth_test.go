package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateToken(7, "0x000000000000000000000000000000000000a11c")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "0x000000000000000000000000000000000000a11c", claims.WalletAddress)

	InitJWT("other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestVerifyWalletSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	message := LoginMessage(wallet, "nonce-1", issued)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	require.NoError(t, VerifyWalletSignature(wallet, message, hexutil.Encode(sig)))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyWalletSignature(crypto.PubkeyToAddress(other.PublicKey), message, hexutil.Encode(sig)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyWalletSignature(wallet, message, "0x1234"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyWalletSignature(wallet, message, "not-hex"), ErrInvalidSignature)

	// the same signature does not cover another challenge
	assert.ErrorIs(t, VerifyWalletSignature(wallet, LoginMessage(wallet, "nonce-2", issued), hexutil.Encode(sig)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyWalletSignature(wallet, LoginMessage(wallet, "nonce-1", issued.Add(time.Minute)), hexutil.Encode(sig)), ErrInvalidSignature)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitJWT("test-secret")

	router := gin.New()
	router.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		addr, ok := GetWalletAddress(c)
		require.True(t, ok)
		c.String(http.StatusOK, addr.Hex())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := GenerateToken(1, "0x000000000000000000000000000000000000a11c")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000a11c").Hex(), w.Body.String())
}

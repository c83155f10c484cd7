package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scuolanet/auth-api/internal/service"
	"github.com/scuolanet/auth-api/pkg/config"
)

func TestAuthHandlerLoginInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func newRefreshOnlyHandler() *AuthHandler {
	cfg := config.JWTConfig{
		AccessSecret:      "access-secret",
		RefreshSecret:     "refresh-secret",
		AccessExpiration:  15 * time.Minute,
		RefreshExpiration: 7 * 24 * time.Hour,
	}
	// Token and credential stores are never reached: both paths under test
	// fail at validation or signature checking.
	svc := service.NewAuthService(nil, nil, nil, service.NewTokenCodec(cfg), nil, nil, nil, cfg, config.LockoutConfig{Threshold: 5, Duration: 15 * time.Minute})
	return NewAuthHandler(svc)
}

func TestAuthHandlerRefreshMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRefreshOnlyHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Refresh(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerRefreshGarbageToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRefreshOnlyHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader([]byte(`{"refresh_token":"garbage"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Refresh(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogoutWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", bytes.NewReader([]byte(`{"refresh_token":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

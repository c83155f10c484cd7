package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/scuolanet/auth-api/internal/models"
	"github.com/scuolanet/auth-api/pkg/config"
	appErrors "github.com/scuolanet/auth-api/pkg/errors"
)

// TokenCodec mints and verifies the signed claim bundles of the two signing
// domains. The domains use independent secrets, so compromise of one cannot
// forge tokens of the other.
type TokenCodec struct {
	cfg config.JWTConfig
}

// NewTokenCodec constructs a codec from the injected JWT configuration.
func NewTokenCodec(cfg config.JWTConfig) *TokenCodec {
	return &TokenCodec{cfg: cfg}
}

// IssueAccess mints a short-lived access token for the user. The returned
// jti identifies this token in the logout denylist.
func (c *TokenCodec) IssueAccess(user *models.User, now time.Time) (token, jti string, err error) {
	jti = uuid.NewString()
	claims := &models.AccessClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessExpiration)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.AccessSecret))
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// IssueRefresh mints a rotating refresh token. The jti is a fresh random
// identifier independent of the claim content; it keys the ledger entry.
func (c *TokenCodec) IssueRefresh(userID string, now time.Time) (token, jti string, err error) {
	jti = uuid.NewString()
	claims := &models.RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.RefreshExpiration)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.RefreshSecret))
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// VerifyAccess validates signature and expiry against the access domain.
// Every failure collapses into the one opaque invalid-token error so the
// response gives no oracle on which check failed.
func (c *TokenCodec) VerifyAccess(tokenString string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	if err := c.verify(tokenString, claims, c.cfg.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh validates signature and expiry against the refresh domain.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*models.RefreshClaims, error) {
	claims := &models.RefreshClaims{}
	if err := c.verify(tokenString, claims, c.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) verify(tokenString string, claims jwt.Claims, secret string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}
	if !token.Valid {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	return nil
}

// Fingerprint derives the one-way hash of a full token string stored in
// the ledger instead of the token itself.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

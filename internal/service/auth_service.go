package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scuolanet/auth-api/internal/models"
	"github.com/scuolanet/auth-api/pkg/config"
	appErrors "github.com/scuolanet/auth-api/pkg/errors"
)

type userStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLockUntil(ctx context.Context, id string, until time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type tokenStore interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindLive(ctx context.Context, jti, userID string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, jti string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) error
}

type denylist interface {
	Deny(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthService orchestrates login, refresh rotation, logout and the lockout
// policy over the credential store, token codec and refresh-token ledger.
type AuthService struct {
	users     userStore
	tokens    tokenStore
	denylist  denylist
	codec     *TokenCodec
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	jwtCfg    config.JWTConfig
	lockout   config.LockoutConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService. The denylist and metrics are
// optional; pass nil to disable them.
func NewAuthService(users userStore, tokens tokenStore, deny denylist, codec *TokenCodec, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, jwtCfg config.JWTConfig, lockout config.LockoutConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		denylist:  deny,
		codec:     codec,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		jwtCfg:    jwtCfg,
		lockout:   lockout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates a user and returns an access/refresh pair. An unknown
// username and a wrong password produce the same error, and locked and
// disabled accounts are rejected before the password is ever verified.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	now := s.now()

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observeLogin("invalid_credentials")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, s.storeFailure("fetch user", err)
	}

	if user.Locked(now) {
		s.observeLogin("locked")
		return nil, appErrors.Clone(appErrors.ErrAccountLocked, "")
	}

	if !user.Active {
		s.observeLogin("disabled")
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "")
	}

	if !VerifyPassword(req.Password, user.PasswordHash) {
		if err := s.recordFailedAttempt(ctx, user, req); err != nil {
			return nil, err
		}
		s.observeLogin("invalid_credentials")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, s.storeFailure("reset failed attempts", err)
	}

	accessToken, _, err := s.codec.IssueAccess(user, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.mintRefresh(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.audit(ctx, &user.ID, models.AuditActionLogin, req.IP, req.UserAgent, map[string]interface{}{"status": "success"})
	s.observeLogin("success")

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtCfg.AccessExpiration.Seconds()),
		IssuedAt:     now,
		User: models.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
		},
	}, nil
}

// Refresh rotates a refresh token: the presented token is verified against
// the refresh domain and the ledger, its entry is revoked, and a fresh pair
// is minted. Two concurrent calls with the same token cannot both succeed;
// the conditional revoke admits exactly one winner.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	now := s.now()

	claims, err := s.codec.VerifyRefresh(req.RefreshToken)
	if err != nil {
		s.observeRotation("invalid_token")
		return nil, err
	}

	entry, err := s.tokens.FindLive(ctx, claims.ID, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observeRotation("invalid_token")
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, s.storeFailure("fetch refresh token", err)
	}

	if entry.TokenHash != Fingerprint(req.RefreshToken) {
		// A valid jti carrying the wrong fingerprint means someone holds a
		// forged or stolen token for this chain. Revoke the owner's entire
		// live chain and surface only an invalidation notice upstream.
		if err := s.tokens.RevokeAllForUser(ctx, claims.UserID, now); err != nil {
			return nil, s.storeFailure("revoke user chain", err)
		}
		s.logger.Warn("refresh token fingerprint mismatch",
			zap.String("user_id", claims.UserID),
			zap.String("jti", claims.ID),
		)
		s.audit(ctx, &claims.UserID, models.AuditActionCompromise, req.IP, req.UserAgent, map[string]interface{}{"jti": claims.ID})
		s.observeRotation("compromised")
		return nil, appErrors.Clone(appErrors.ErrTokenCompromised, "")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observeRotation("invalid_token")
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, s.storeFailure("fetch user", err)
	}

	if !user.Active {
		s.observeRotation("disabled")
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "")
	}

	revoked, err := s.tokens.Revoke(ctx, claims.ID, now)
	if err != nil {
		return nil, s.storeFailure("revoke refresh token", err)
	}
	if !revoked {
		// A concurrent rotation won the race for this jti.
		s.observeRotation("invalid_token")
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	accessToken, _, err := s.codec.IssueAccess(user, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.mintRefresh(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &user.ID, models.AuditActionRefresh, req.IP, req.UserAgent, map[string]interface{}{"rotated_jti": claims.ID})
	s.observeRotation("success")

	return &models.RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtCfg.AccessExpiration.Seconds()),
		IssuedAt:     now,
	}, nil
}

// Logout revokes the ledger entry of the presented refresh token after
// checking it belongs to the authenticated caller, and denylists the
// caller's access token for its remaining lifetime. Revoking an already
// revoked token succeeds; logout asserts intent, not state.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, access *models.AccessClaims, ip, userAgent string) error {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}

	if claims.UserID != access.UserID {
		return appErrors.Clone(appErrors.ErrNotAuthorized, "token does not belong to user")
	}

	now := s.now()

	if _, err := s.tokens.Revoke(ctx, claims.ID, now); err != nil {
		return s.storeFailure("revoke refresh token", err)
	}

	if s.denylist != nil && access.ExpiresAt != nil {
		if ttl := access.ExpiresAt.Time.Sub(now); ttl > 0 {
			if err := s.denylist.Deny(ctx, access.ID, ttl); err != nil {
				s.logger.Warn("failed to denylist access token", zap.Error(err))
			}
		}
	}

	s.audit(ctx, &access.UserID, models.AuditActionLogout, ip, userAgent, map[string]interface{}{"jti": claims.ID})
	return nil
}

// CurrentUser loads fresh account info for an authenticated caller. The
// token's role claim may be stale; /me reflects the stored row.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		return nil, s.storeFailure("fetch user", err)
	}
	return &models.UserInfo{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Authorize verifies an access token. Stateless by design: possession of a
// valid, unexpired signature is the whole check, so revoking a session
// never invalidates outstanding access tokens (the denylist at the HTTP
// layer is the one bounded exception).
func (s *AuthService) Authorize(tokenString string) (*models.AccessClaims, error) {
	return s.codec.VerifyAccess(tokenString)
}

func (s *AuthService) mintRefresh(ctx context.Context, userID string, now time.Time) (string, error) {
	token, jti, err := s.codec.IssueRefresh(userID, now)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	entry := &models.RefreshToken{
		UserID:    userID,
		JTI:       jti,
		TokenHash: Fingerprint(token),
		ExpiresAt: now.Add(s.jwtCfg.RefreshExpiration),
		CreatedAt: now,
	}
	if err := s.tokens.Insert(ctx, entry); err != nil {
		return "", s.storeFailure("persist refresh token", err)
	}
	return token, nil
}

func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.User, req models.LoginRequest) error {
	count, err := s.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return s.storeFailure("increment failed attempts", err)
	}

	s.audit(ctx, &user.ID, models.AuditActionLoginFailed, req.IP, req.UserAgent, map[string]interface{}{"failed_attempts": count})

	if count >= s.lockout.Threshold {
		until := s.now().Add(s.lockout.Duration)
		if err := s.users.SetLockUntil(ctx, user.ID, until); err != nil {
			return s.storeFailure("set lock until", err)
		}
		s.logger.Warn("account locked after repeated failures",
			zap.String("user_id", user.ID),
			zap.Int("failed_attempts", count),
			zap.Time("lock_until", until),
		)
		s.audit(ctx, &user.ID, models.AuditActionLockout, req.IP, req.UserAgent, map[string]interface{}{"lock_until": until})
		if s.metrics != nil {
			s.metrics.ObserveLockout()
		}
	}
	return nil
}

func (s *AuthService) storeFailure(op string, err error) error {
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
}

func (s *AuthService) audit(ctx context.Context, userID *string, action, ip, userAgent string, details map[string]interface{}) {
	payload, _ := json.Marshal(details)
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: userID,
		Details:    payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuthService) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(outcome)
	}
}

func (s *AuthService) observeRotation(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRotation(outcome)
	}
}

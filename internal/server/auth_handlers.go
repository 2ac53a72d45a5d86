package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/auth"
	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/tasks"
)

const (
	// recentLoginWindow bounds how long a credential check authorizes
	// sensitive changes such as a new password.
	recentLoginWindow = 5 * time.Minute
	resetTokenTTL     = time.Hour
)

// RegisterRequest represents a sign-up request
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name" binding:"omitempty,displayname"`
	Persistence string `json:"persistence" binding:"omitempty,oneof=session durable"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password" binding:"required"`
	Persistence string `json:"persistence" binding:"omitempty,oneof=session durable"`
}

// ReauthenticateRequest confirms the current password
type ReauthenticateRequest struct {
	Password string `json:"password" binding:"required"`
}

// UpdatePasswordRequest replaces the password after a recent reauthentication
type UpdatePasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// PasswordResetRequest asks for a reset link
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// ConfirmPasswordResetRequest redeems a reset token
type ConfirmPasswordResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// IdentityResponse is the public shape of an identity
type IdentityResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Provider    string `json:"provider"`
}

// TokenResponse is returned whenever a session is issued
type TokenResponse struct {
	Token       string           `json:"token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Persistence string           `json:"persistence"`
	User        IdentityResponse `json:"user"`
}

func identityFromUser(u *models.User) IdentityResponse {
	return IdentityResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
		Provider:    u.Provider,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) validEmail(email string) bool {
	return s.validator.Var(email, "required,email") == nil
}

// issueSession records a server-side session and signs a token for it.
func (s *Server) issueSession(c *gin.Context, user *models.User, persistence string) (*TokenResponse, error) {
	if persistence == "" {
		persistence = models.PersistenceSession
	}
	ttl := s.config.Sessions.SessionTTL
	if persistence == models.PersistenceDurable {
		ttl = s.config.Sessions.DurableTTL
	}

	now := s.now()
	sess := &models.Session{
		UserID:      user.ID,
		Persistence: persistence,
		ExpiresAt:   now.Add(ttl),
		LastAuthAt:  now,
		UserAgent:   c.Request.UserAgent(),
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(user.ID, user.Email, sess.ID, persistence, sess.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		Token:       token,
		ExpiresAt:   sess.ExpiresAt,
		Persistence: persistence,
		User:        identityFromUser(user),
	}, nil
}

// @Summary Register
// @Description Create a password identity and sign it in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 201 {object} TokenResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/auth/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	email := normalizeEmail(req.Email)
	if !s.validEmail(email) {
		errorJSON(c, http.StatusBadRequest, codeInvalidEmail, "Invalid email address")
		return
	}
	if err := auth.CheckPasswordStrength(req.Password); err != nil {
		errorJSON(c, http.StatusBadRequest, codeWeakPassword, err.Error())
		return
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check email")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	if count > 0 {
		errorJSON(c, http.StatusConflict, codeEmailInUse, "Email already in use")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to create user")
		return
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Provider:     models.ProviderPassword,
	}
	if err := s.db.Create(user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to create user")
		return
	}

	resp, err := s.issueSession(c, user, req.Persistence)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to generate token")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	c.JSON(http.StatusCreated, resp)
}

// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	email := normalizeEmail(req.Email)
	if !s.validEmail(email) {
		errorJSON(c, http.StatusBadRequest, codeInvalidEmail, "Invalid email address")
		return
	}
	if !s.limiter.Allow(email, s.now()) {
		s.logger.Warn().Str("email", email).Msg("Login rate limited")
		errorJSON(c, http.StatusTooManyRequests, codeTooManyRequests, "Too many attempts, try again later")
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeUserNotFound, "No account for this email")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		errorJSON(c, http.StatusUnauthorized, codeWrongPassword, "Wrong password")
		return
	}
	s.limiter.Reset(email)

	resp, err := s.issueSession(c, &user, req.Persistence)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to generate token")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("persistence", resp.Persistence).Msg("User logged in")
	c.JSON(http.StatusOK, resp)
}

// @Summary Logout
// @Description Revoke the current session
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /api/auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	now := s.now()
	if err := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionData.SessionID).
		Update("revoked_at", &now).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to revoke session")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Msg("User logged out")
	c.Status(http.StatusNoContent)
}

// @Summary Get current user
// @Description Get the identity behind the presented token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} IdentityResponse
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/me [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, identityFromUser(&user))
}

func (s *Server) reauthenticate(c *gin.Context) {
	var req ReauthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	sessionData, _ := GetSessionData(c)
	if !s.limiter.Allow(sessionData.Email, s.now()) {
		errorJSON(c, http.StatusTooManyRequests, codeTooManyRequests, "Too many attempts, try again later")
		return
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.logger.Error().Err(err).Msg("Failed to find user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		errorJSON(c, http.StatusUnauthorized, codeWrongPassword, "Wrong password")
		return
	}
	s.limiter.Reset(sessionData.Email)

	if err := s.db.Model(&models.Session{}).Where("id = ?", sessionData.SessionID).
		Update("last_auth_at", s.now()).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to record reauthentication")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	c.Status(http.StatusNoContent)
}

// updatePassword requires a credential check within recentLoginWindow and
// revokes every other session of the user.
func (s *Server) updatePassword(c *gin.Context) {
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	sessionData, _ := GetSessionData(c)

	var sess models.Session
	if err := models.FindByID(s.db, sessionData.SessionID, &sess); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load session")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	if s.now().Sub(sess.LastAuthAt) > recentLoginWindow {
		errorJSON(c, http.StatusForbidden, codeRequiresRecentLogin, "Sign in again before changing the password")
		return
	}
	if err := auth.CheckPasswordStrength(req.NewPassword); err != nil {
		errorJSON(c, http.StatusBadRequest, codeWeakPassword, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", sessionData.UserID).
			Update("password_hash", hash).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("user_id = ? AND id <> ? AND revoked_at IS NULL", sessionData.UserID, sessionData.SessionID).
			Update("revoked_at", &now).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to update password")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Msg("Password updated")
	c.Status(http.StatusNoContent)
}

// requestPasswordReset always answers 202 for well-formed addresses so the
// response does not reveal which emails have accounts.
func (s *Server) requestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	email := normalizeEmail(req.Email)
	if !s.validEmail(email) {
		errorJSON(c, http.StatusBadRequest, codeInvalidEmail, "Invalid email address")
		return
	}

	accepted := gin.H{"status": "accepted"}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Msg("Failed to find user")
		}
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate reset token")
		c.JSON(http.StatusAccepted, accepted)
		return
	}
	reset := &models.PasswordReset{
		UserID:    user.ID,
		TokenHash: auth.HashOpaqueToken(token),
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.db.Create(reset).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store reset token")
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	resetURL := s.config.HTTP.PublicURL + pagesPrefix + "/reset-password?token=" + token
	if s.tasks == nil {
		s.logger.Warn().Str("user_id", user.ID).Msg("No task queue, password reset email not sent")
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	task, err := tasks.NewPasswordResetEmailTask(user.ID, user.Email, resetURL)
	if err == nil {
		_, err = s.tasks.EnqueueContext(c.Request.Context(), task)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to enqueue password reset email")
	} else {
		s.logger.Info().Str("user_id", user.ID).Msg("Password reset email enqueued")
	}

	c.JSON(http.StatusAccepted, accepted)
}

// errAlreadyRedeemed means a concurrent request used the single-use token
// first.
var errAlreadyRedeemed = errors.New("token already redeemed")

// redeemOnce marks the row selected by q as used. Only one caller can flip
// used_at from NULL, so the update itself is the redemption check.
func redeemOnce(q *gorm.DB, now time.Time) error {
	res := q.Where("used_at IS NULL").Update("used_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errAlreadyRedeemed
	}
	return nil
}

func (s *Server) confirmPasswordReset(c *gin.Context) {
	var req ConfirmPasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	now := s.now()
	var reset models.PasswordReset
	if err := s.db.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", auth.HashOpaqueToken(req.Token), now).
		First(&reset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusBadRequest, codeInvalidActionCode, "Reset link is invalid or expired")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to look up reset token")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	if err := auth.CheckPasswordStrength(req.NewPassword); err != nil {
		errorJSON(c, http.StatusBadRequest, codeWeakPassword, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := redeemOnce(tx.Model(&models.PasswordReset{}).Where("id = ?", reset.ID), now); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", reset.UserID).
			Update("password_hash", hash).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", reset.UserID).
			Update("revoked_at", &now).Error
	})
	if errors.Is(err, errAlreadyRedeemed) {
		errorJSON(c, http.StatusBadRequest, codeInvalidActionCode, "Reset link is invalid or expired")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to reset password")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", reset.UserID).Msg("Password reset")
	c.Status(http.StatusNoContent)
}

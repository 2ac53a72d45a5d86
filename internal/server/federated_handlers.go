package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/auth"
	"github.com/soulnet-app/soulnet/internal/models"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	oauthStateTTL = 10 * time.Minute
	handoffTTL    = 2 * time.Minute
)

// googleUserInfo is the subset of the userinfo response we read.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FederatedExchangeRequest redeems a handoff code
type FederatedExchangeRequest struct {
	Code string `json:"code" binding:"required"`
}

var handoffPage = template.Must(template.New("handoff").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>SoulNet sign-in</title></head>
<body>
{{if .Code}}<p>Paste this code into SoulNet to finish signing in:</p><pre>{{.Code}}</pre>
{{else}}<p>Sign-in was cancelled: {{.Error}}</p>{{end}}
</body></html>`))

// loopbackRedirect accepts only http callbacks on the local machine, which is
// where the CLI listens.
func loopbackRedirect(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" {
		return false
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

func (s *Server) googleStart(c *gin.Context) {
	if s.oauth == nil {
		errorJSON(c, http.StatusBadRequest, codeOperationNotAllowed, "Google sign-in is not enabled")
		return
	}

	redirectURI := c.Query("redirect_uri")
	if redirectURI != "" && !loopbackRedirect(redirectURI) {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "redirect_uri must be a loopback http URL")
		return
	}
	persistence := c.DefaultQuery("persistence", models.PersistenceSession)
	if persistence != models.PersistenceSession && persistence != models.PersistenceDurable {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Invalid persistence")
		return
	}

	state, err := auth.GenerateStateToken(redirectURI, persistence, oauthStateTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign OAuth state")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// googleCallback completes the provider flow and hands the result to the
// client through a single-use code. Without a loopback redirect the code is
// shown on a page for the user to paste.
func (s *Server) googleCallback(c *gin.Context) {
	if s.oauth == nil {
		errorJSON(c, http.StatusBadRequest, codeOperationNotAllowed, "Google sign-in is not enabled")
		return
	}

	state, err := auth.ValidateStateToken(c.Query("state"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Invalid OAuth state")
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		s.logger.Info().Str("error", providerErr).Msg("Federated sign-in cancelled")
		s.finishHandoff(c, state.RedirectURI, "", "auth/popup-closed-by-user")
		return
	}

	info, err := s.fetchGoogleUser(c, c.Query("code"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to complete Google sign-in")
		errorJSON(c, http.StatusBadGateway, codeInternal, "Failed to complete Google sign-in")
		return
	}
	if info.Email == "" || !info.VerifiedEmail {
		errorJSON(c, http.StatusForbidden, codeOperationNotAllowed, "Google account email is not verified")
		return
	}

	user, err := s.upsertFederatedUser(info)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to store federated user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	code, err := auth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate handoff code")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	handoff := &models.FederatedHandoff{
		CodeHash:    auth.HashOpaqueToken(code),
		UserID:      user.ID,
		Persistence: state.Persistence,
		ExpiresAt:   s.now().Add(handoffTTL),
	}
	if err := s.db.Create(handoff).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store handoff")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Federated sign-in completed")
	s.finishHandoff(c, state.RedirectURI, code, "")
}

func (s *Server) finishHandoff(c *gin.Context, redirectURI, code, errCode string) {
	if redirectURI == "" {
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := handoffPage.Execute(c.Writer, gin.H{"Code": code, "Error": errCode}); err != nil {
			s.logger.Error().Err(err).Msg("Failed to render handoff page")
		}
		return
	}

	u, _ := url.Parse(redirectURI)
	q := u.Query()
	if code != "" {
		q.Set("code", code)
	} else {
		q.Set("error", errCode)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

func (s *Server) fetchGoogleUser(c *gin.Context, code string) (*googleUserInfo, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	ctx := c.Request.Context()

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	resp, err := s.oauth.Client(ctx, token).Get(s.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	info.Email = normalizeEmail(info.Email)
	return &info, nil
}

// upsertFederatedUser links the provider account to an existing identity with
// the same verified email, or creates one.
func (s *Server) upsertFederatedUser(info *googleUserInfo) (*models.User, error) {
	var user models.User
	err := s.db.Where("email = ?", info.Email).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{}
		if user.DisplayName == "" && info.Name != "" {
			updates["display_name"] = info.Name
		}
		if user.PhotoURL == "" && info.Picture != "" {
			updates["photo_url"] = info.Picture
		}
		if len(updates) > 0 {
			if err := s.db.Model(&user).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
		Provider:    models.ProviderGoogle,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Server) federatedExchange(c *gin.Context) {
	var req FederatedExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	now := s.now()
	var handoff models.FederatedHandoff
	err := s.db.Where("code_hash = ? AND used_at IS NULL AND expires_at > ?", auth.HashOpaqueToken(req.Code), now).
		First(&handoff).Error
	if err == nil {
		err = redeemOnce(s.db.Model(&models.FederatedHandoff{}).Where("id = ?", handoff.ID), now)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, errAlreadyRedeemed) {
			errorJSON(c, http.StatusBadRequest, codeInvalidActionCode, "Sign-in code is invalid or expired")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to redeem handoff")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	var user models.User
	if err := models.FindByID(s.db, handoff.UserID, &user); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load federated user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	resp, err := s.issueSession(c, &user, handoff.Persistence)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, resp)
}

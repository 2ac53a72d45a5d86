package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/models"
)

// UpdateProfileRequest is a partial profile; nil fields are left untouched.
type UpdateProfileRequest struct {
	DisplayName     *string `json:"display_name" binding:"omitempty,displayname"`
	PhotoURL        *string `json:"photo_url" binding:"omitempty,max=2048"`
	Bio             *string `json:"bio" binding:"omitempty,max=1000"`
	Location        *string `json:"location" binding:"omitempty,max=100"`
	Website         *string `json:"website" binding:"omitempty,max=2048"`
	BackgroundImage *string `json:"background_image" binding:"omitempty,max=2048"`
}

func (r UpdateProfileRequest) empty() bool {
	return r.DisplayName == nil && r.PhotoURL == nil && r.Bio == nil &&
		r.Location == nil && r.Website == nil && r.BackgroundImage == nil
}

// getUserDocument returns the profile document of a user. Users may read
// their own; admins may read any.
func (s *Server) getUserDocument(c *gin.Context) {
	sessionData, _ := GetSessionData(c)
	userID := c.Param("id")

	if userID != sessionData.UserID && !sessionData.IsAdmin() {
		errorJSON(c, http.StatusForbidden, codeForbidden, "Cannot read another user's document")
		return
	}

	var doc models.UserDocument
	if err := s.db.Where("user_id = ?", userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "Document not found")
			return
		}
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load user document")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, doc)
}

// updateProfile merges the given fields into the identity and its document,
// creating the document on first write.
func (s *Server) updateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if req.empty() {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "No fields to update")
		return
	}
	if req.Website != nil && *req.Website != "" && s.validator.Var(*req.Website, "url") != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Website must be a URL")
		return
	}

	sessionData, _ := GetSessionData(c)

	var doc models.UserDocument
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := models.FindByID(tx, sessionData.UserID, &user); err != nil {
			return err
		}

		userUpdates := map[string]interface{}{}
		if req.DisplayName != nil {
			userUpdates["display_name"] = *req.DisplayName
			user.DisplayName = *req.DisplayName
		}
		if req.PhotoURL != nil {
			userUpdates["photo_url"] = *req.PhotoURL
			user.PhotoURL = *req.PhotoURL
		}
		if len(userUpdates) > 0 {
			if err := tx.Model(&user).Updates(userUpdates).Error; err != nil {
				return err
			}
		}

		err := tx.Where("user_id = ?", user.ID).First(&doc).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			doc = models.UserDocument{UserID: user.ID, Role: models.RoleUser}
		}

		doc.Email = user.Email
		doc.DisplayName = user.DisplayName
		doc.PhotoURL = user.PhotoURL
		mergeString(&doc.Bio, req.Bio)
		mergeString(&doc.Location, req.Location)
		mergeString(&doc.Website, req.Website)
		mergeString(&doc.BackgroundImage, req.BackgroundImage)

		return tx.Save(&doc).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to update profile")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to update profile")
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Msg("Profile updated")
	c.JSON(http.StatusOK, doc)
}

func mergeString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/storage"
	"github.com/soulnet-app/soulnet/internal/tasks"
	"github.com/soulnet-app/soulnet/internal/upload"
)

// UserDetail represents a user in the admin listing
type UserDetail struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Provider    string    `json:"provider"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// SetRoleRequest changes a user's role
type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// @Summary List users
// @Description List all users with their roles (admin only)
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserDetail
// @Failure 401 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /api/admin/users [get]
func (s *Server) listUsers(c *gin.Context) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	var docs []models.UserDocument
	if err := s.db.Select("user_id", "role").Find(&docs).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list roles")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	roles := make(map[string]string, len(docs))
	for _, d := range docs {
		roles[d.UserID] = d.Role
	}

	details := make([]UserDetail, len(users))
	for i, u := range users {
		role := roles[u.ID]
		if role == "" {
			role = models.RoleUser
		}
		details[i] = UserDetail{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Provider:    u.Provider,
			Role:        role,
			CreatedAt:   u.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, details)
}

// @Summary Set user role
// @Description Grant or revoke admin rights (admin only, not on self)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body SetRoleRequest true "Role"
// @Success 200 {object} models.UserDocument
// @Router /api/admin/users/{id}/role [put]
func (s *Server) setUserRole(c *gin.Context) {
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	userID := c.Param("id")
	sessionData, _ := GetSessionData(c)
	if userID == sessionData.UserID {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Cannot change your own role")
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "User not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	var doc models.UserDocument
	err := s.db.Where("user_id = ?", userID).First(&doc).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error().Err(err).Msg("Failed to load user document")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		doc = models.UserDocument{
			UserID:      user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			PhotoURL:    user.PhotoURL,
		}
	}
	doc.Role = req.Role
	if err := s.db.Save(&doc).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to save role")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("role", req.Role).
		Str("changed_by", sessionData.UserID).
		Msg("User role changed")

	c.JSON(http.StatusOK, doc)
}

func (s *Server) listUploads(c *gin.Context) {
	query := s.db.Order("created_at DESC")
	if folder := c.Query("folder"); folder != "" {
		query = query.Where("folder = ?", folder)
	}

	var uploads []models.Upload
	if err := query.Find(&uploads).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list uploads")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, uploads)
}

// deleteUpload removes the object and its record. An object already gone
// from the bucket is not an error.
func (s *Server) deleteUpload(c *gin.Context) {
	var record models.Upload
	if err := models.FindByID(s.db, c.Param("id"), &record); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "Upload not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find upload")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	if err := s.store.DeleteObject(c.Request.Context(), record.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("key", record.Key).Msg("Failed to delete object")
		errorJSON(c, http.StatusBadGateway, codeStorageFailure, "Failed to delete object")
		return
	}
	if err := s.db.Delete(&record).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete upload record")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	sessionData, _ := GetSessionData(c)
	s.logger.Info().Str("key", record.Key).Str("deleted_by", sessionData.UserID).Msg("Upload deleted")
	c.Status(http.StatusNoContent)
}

// JobsResponse describes the background job schedule
type JobsResponse struct {
	CleanupSchedule string     `json:"cleanup_schedule"`
	NextCleanup     *time.Time `json:"next_cleanup"`
	TempUploadTTL   string     `json:"temp_upload_ttl"`
}

// nextRun returns the next time a cron expression fires after from.
func nextRun(cronExpr string, from time.Time) *time.Time {
	if cronExpr == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil
	}

	next := schedule.Next(from)
	return &next
}

func (s *Server) getJobs(c *gin.Context) {
	c.JSON(http.StatusOK, JobsResponse{
		CleanupSchedule: s.config.Jobs.CleanupSchedule,
		NextCleanup:     nextRun(s.config.Jobs.CleanupSchedule, s.now()),
		TempUploadTTL:   s.config.Jobs.TempUploadTTL.String(),
	})
}

// triggerCleanup enqueues a temp upload cleanup outside the schedule.
func (s *Server) triggerCleanup(c *gin.Context) {
	if s.tasks == nil {
		errorJSON(c, http.StatusServiceUnavailable, codeInternal, "Task queue unavailable")
		return
	}

	task, err := tasks.NewCleanupTempUploadsTask(upload.FolderTemp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create cleanup task")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	info, err := s.tasks.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue cleanup task")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to enqueue task")
		return
	}

	sessionData, _ := GetSessionData(c)
	s.logger.Info().Str("task_id", info.ID).Str("triggered_by", sessionData.UserID).Msg("Cleanup enqueued")
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}

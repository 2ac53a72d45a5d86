package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/storage"
	"github.com/soulnet-app/soulnet/internal/upload"
)

const objectsPath = "/api/storage/objects"

var uploadFolders = []string{upload.FolderAvatars, upload.FolderPosts, upload.FolderTemp}

// ObjectResponse describes a stored object
type ObjectResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// splitObjectKey checks that key names a file directly inside one of the
// upload folders and returns that folder.
func splitObjectKey(key string) (string, bool) {
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return "", false
	}
	for _, folder := range uploadFolders {
		name, ok := strings.CutPrefix(key, folder)
		if ok && name != "" && !strings.Contains(name, "/") {
			return folder, true
		}
	}
	return "", false
}

func uploadErrorCode(err error) (int, string) {
	var uerr *upload.Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case upload.InvalidType:
			return http.StatusUnsupportedMediaType, codeInvalidType
		case upload.Oversize:
			return http.StatusRequestEntityTooLarge, codeOversize
		}
	}
	return http.StatusBadGateway, codeStorageFailure
}

// putObject stores an image under the caller-chosen key after the same
// validation the client applies.
func (s *Server) putObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	folder, ok := splitObjectKey(key)
	if !ok {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Invalid object key")
		return
	}

	maxBytes := s.config.Storage.MaxUploadBytes
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "Failed to read body")
		return
	}

	uploader := upload.New(upload.Options{MaxBytes: maxBytes, Logger: s.logger})
	file, err := uploader.Validate(upload.File{Name: key, ContentType: c.ContentType(), Data: data})
	if err != nil {
		status, code := uploadErrorCode(err)
		errorJSON(c, status, code, err.Error())
		return
	}

	cacheControl := c.GetHeader("Cache-Control")
	if cacheControl == "" {
		cacheControl = upload.CacheControl
	}
	if err := s.store.PutObject(c.Request.Context(), key, bytes.NewReader(file.Data), file.Size(), file.ContentType, cacheControl); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to store object")
		errorJSON(c, http.StatusBadGateway, codeStorageFailure, "Failed to store object")
		return
	}

	sessionData, _ := GetSessionData(c)
	record := &models.Upload{
		Key:         key,
		Folder:      folder,
		ContentType: file.ContentType,
		Size:        file.Size(),
		URL:         s.store.PublicURL(key),
		UploaderID:  sessionData.UserID,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "size", "url", "uploader_id"}),
	}).Create(record).Error; err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to record upload")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	s.logger.Info().Str("key", key).Int64("size", record.Size).Str("uploader_id", record.UploaderID).Msg("Object stored")
	c.JSON(http.StatusCreated, ObjectResponse{Key: key, URL: record.URL})
}

// getObject serves objects from stores that can be read back, which is the
// in-process fallback store.
func (s *Server) getObject(c *gin.Context) {
	reader, ok := s.store.(storage.Reader)
	if !ok {
		errorJSON(c, http.StatusNotFound, codeNotFound, "Object not found")
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	obj, err := reader.GetObject(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "Object not found")
			return
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to read object")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	if obj.CacheControl != "" {
		c.Header("Cache-Control", obj.CacheControl)
	}
	c.Header("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

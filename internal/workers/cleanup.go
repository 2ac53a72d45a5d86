package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/storage"
	"github.com/soulnet-app/soulnet/internal/tasks"
	"github.com/soulnet-app/soulnet/internal/upload"
)

// CleanupResult summarizes one cleanup run.
type CleanupResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// HandleCleanupTempUploads removes temporary uploads older than ttl.
func HandleCleanupTempUploads(ctx context.Context, t *asynq.Task, db *gorm.DB, store storage.Store, ttl time.Duration, logger zerolog.Logger) error {
	payload, err := tasks.ParseCleanupPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	res, err := CleanupTempUploads(ctx, db, store, payload.Prefix, ttl, time.Now(), logger)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("failed to delete %d of %d stale uploads", res.Failed, res.Deleted+res.Failed)
	}
	return nil
}

// CleanupTempUploads deletes objects under prefix last modified before
// now-ttl, together with their upload records. Prefixes outside the temp
// folder are refused.
func CleanupTempUploads(ctx context.Context, db *gorm.DB, store storage.Store, prefix string, ttl time.Duration, now time.Time, logger zerolog.Logger) (CleanupResult, error) {
	var res CleanupResult
	if prefix == "" {
		prefix = upload.FolderTemp
	}
	if !strings.HasPrefix(prefix, upload.FolderTemp) {
		return res, fmt.Errorf("%w: refusing to clean %q outside %s", asynq.SkipRetry, prefix, upload.FolderTemp)
	}

	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return res, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	cutoff := now.Add(-ttl)
	for _, obj := range objects {
		res.Scanned++
		if !obj.LastModified.Before(cutoff) {
			continue
		}

		if err := store.DeleteObject(ctx, obj.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error().Err(err).Str("key", obj.Key).Msg("Failed to delete stale upload")
			res.Failed++
			continue
		}
		if err := db.WithContext(ctx).Where(&models.Upload{Key: obj.Key}).Delete(&models.Upload{}).Error; err != nil {
			logger.Error().Err(err).Str("key", obj.Key).Msg("Failed to delete upload record")
			res.Failed++
			continue
		}
		res.Deleted++
	}

	logger.Info().
		Str("prefix", prefix).
		Int("scanned", res.Scanned).
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Dur("ttl", ttl).
		Msg("Temporary upload cleanup finished")
	return res, nil
}

package workers

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/storage"
	"github.com/soulnet-app/soulnet/internal/tasks"
	"github.com/soulnet-app/soulnet/internal/upload"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestHandlePasswordResetEmail(t *testing.T) {
	task, err := tasks.NewPasswordResetEmailTask("u1", "ann@example.com", "http://soulnet.test/app/reset-password?token=abc")
	require.NoError(t, err)

	mailer := &fakeMailer{}
	require.NoError(t, HandlePasswordResetEmail(context.Background(), task, mailer, zerolog.Nop()))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ann@example.com", mailer.sent[0].to)
	assert.Equal(t, resetSubject, mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "http://soulnet.test/app/reset-password?token=abc")
}

func TestHandlePasswordResetEmail_Errors(t *testing.T) {
	t.Run("bad payload is not retried", func(t *testing.T) {
		task := asynq.NewTask(tasks.TypePasswordResetEmail, []byte("{"))
		err := HandlePasswordResetEmail(context.Background(), task, &fakeMailer{}, zerolog.Nop())
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		task, err := tasks.NewPasswordResetEmailTask("u1", "ann@example.com", "http://x")
		require.NoError(t, err)
		boom := errors.New("relay down")
		err = HandlePasswordResetEmail(context.Background(), task, &fakeMailer{err: boom}, zerolog.Nop())
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewMailer(config.SMTPConfig{}, zerolog.New(&buf))
	require.IsType(t, &LogMailer{}, mailer)

	require.NoError(t, mailer.Send(context.Background(), "ann@example.com", "Hi", "link"))
	assert.Contains(t, buf.String(), "ann@example.com")
}

func TestCleanupTempUploads(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemoryStore("http://soulnet.test/objects")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	put := func(key string, at time.Time) {
		store.SetClock(func() time.Time { return at })
		require.NoError(t, store.PutObject(ctx, key, strings.NewReader("x"), 1, "image/png", upload.CacheControl))
		require.NoError(t, db.Create(&models.Upload{Key: key, Folder: strings.SplitAfter(key, "/")[0], ContentType: "image/png", Size: 1, URL: store.PublicURL(key)}).Error)
	}
	put("temp/old.png", now.Add(-48*time.Hour))
	put("temp/fresh.png", now.Add(-time.Hour))
	put("avatars/old.png", now.Add(-48*time.Hour))

	res, err := CleanupTempUploads(ctx, db, store, "", 24*time.Hour, now, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Scanned: 2, Deleted: 1}, res)

	objects, err := store.ListObjects(ctx, "")
	require.NoError(t, err)
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"avatars/old.png", "temp/fresh.png"}, keys)

	var remaining int64
	require.NoError(t, db.Model(&models.Upload{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestCleanupTempUploads_RefusesOtherFolders(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemoryStore("http://soulnet.test/objects")

	_, err := CleanupTempUploads(context.Background(), db, store, upload.FolderAvatars, time.Hour, time.Now(), zerolog.Nop())
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCleanupScheduler(t *testing.T) {
	client := &fakeEnqueuer{}
	s, err := NewCleanupScheduler(client, "0 3 * * *", zerolog.Nop())
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	assert.False(t, s.Tick(ctx), "first tick only computes the next slot")
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), s.next)

	clock = clock.Add(time.Hour)
	assert.False(t, s.Tick(ctx))

	clock = time.Date(2026, 3, 1, 3, 0, 30, 0, time.UTC)
	assert.True(t, s.Tick(ctx))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, tasks.TypeCleanupTempUploads, client.tasks[0].Type())
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), s.next)

	payload, err := tasks.ParseCleanupPayload(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, upload.FolderTemp, payload.Prefix)

	assert.False(t, s.Tick(ctx), "not due again until tomorrow")
}

func TestCleanupScheduler_EnqueueFailureWaitsForNextSlot(t *testing.T) {
	client := &fakeEnqueuer{err: errors.New("redis down")}
	s, err := NewCleanupScheduler(client, "*/5 * * * *", zerolog.Nop())
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Tick(context.Background())
	clock = clock.Add(5 * time.Minute)
	assert.False(t, s.Tick(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 1, 1, 10, 0, 0, time.UTC), s.next)
}

func TestNewCleanupScheduler_InvalidExpression(t *testing.T) {
	_, err := NewCleanupScheduler(&fakeEnqueuer{}, "not a cron", zerolog.Nop())
	assert.Error(t, err)
}

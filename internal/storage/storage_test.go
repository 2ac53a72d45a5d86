package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-app/soulnet/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("https://cdn.example.com/")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.PutObject(ctx, "temp/a.jpg", strings.NewReader("aaa"), 3, "image/jpeg", "public"))
	require.NoError(t, m.PutObject(ctx, "posts/b.jpg", strings.NewReader("bb"), 2, "image/jpeg", "public"))

	obj, err := m.GetObject(ctx, "temp/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), obj.Data)
	assert.Equal(t, now, obj.LastModified)

	list, err := m.ListObjects(ctx, "temp/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "temp/a.jpg", list[0].Key)
	assert.Equal(t, int64(3), list[0].Size)

	assert.Equal(t, "https://cdn.example.com/posts/b.jpg", m.PublicURL("posts/b.jpg"))

	require.NoError(t, m.DeleteObject(ctx, "temp/a.jpg"))
	assert.ErrorIs(t, m.DeleteObject(ctx, "temp/a.jpg"), ErrNotFound)
	_, err = m.GetObject(ctx, "temp/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{}, zerolog.Nop())
	assert.Error(t, err)

	s, err := NewS3Store(context.Background(), config.StorageConfig{
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		Region:          "auto",
		Bucket:          "soulnet",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "https://account.r2.cloudflarestorage.com/soulnet/avatars/x.png", s.PublicURL("avatars/x.png"))

	s, err = NewS3Store(context.Background(), config.StorageConfig{
		Region:          "auto",
		Bucket:          "soulnet",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PublicEndpoint:  "https://img.soulnet.example/",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "https://img.soulnet.example/avatars/x.png", s.PublicURL("avatars/x.png"))
}

var (
	_ Store  = (*S3Store)(nil)
	_ Store  = (*MemoryStore)(nil)
	_ Reader = (*MemoryStore)(nil)
)

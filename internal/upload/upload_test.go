package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	key          string
	body         []byte
	contentType  string
	cacheControl string
}

type fakeStore struct {
	mu    sync.Mutex
	puts  []putCall
	err   error
	fails int
}

func (s *fakeStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, cacheControl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("transient")
	}
	if s.err != nil {
		return s.err
	}
	data, _ := io.ReadAll(body)
	s.puts = append(s.puts, putCall{key: key, body: data, contentType: contentType, cacheControl: cacheControl})
	return nil
}

func (s *fakeStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

type fakeCompressor struct {
	out   []byte
	calls int
}

func (c *fakeCompressor) Compress(f File, opts CompressOptions) (File, error) {
	c.calls++
	return File{Name: f.Name, ContentType: f.ContentType, Data: c.out}, nil
}

// jpegHeader is enough for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func fakeJPEG(size int) []byte {
	data := make([]byte, size)
	copy(data, jpegHeader)
	return data
}

func newTestUploader(store ObjectStore, c Compressor) *Uploader {
	return New(Options{
		Store:      store,
		Compressor: c,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
		NewID:      func() string { return "11111111-2222-3333-4444-555555555555" },
	})
}

func TestValidate(t *testing.T) {
	u := newTestUploader(&fakeStore{}, nil)

	tests := []struct {
		name     string
		file     File
		wantKind ErrorKind
		wantType string
	}{
		{"declared jpeg", File{Name: "a.jpg", ContentType: "image/jpeg", Data: fakeJPEG(10)}, "", "image/jpeg"},
		{"sniffed jpeg", File{Name: "a", Data: fakeJPEG(10)}, "", "image/jpeg"},
		{"jpg alias", File{ContentType: "image/jpg", Data: fakeJPEG(10)}, "", "image/jpeg"},
		{"pdf rejected", File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, InvalidType, ""},
		{"sniffed text rejected", File{Name: "a.txt", Data: []byte("hello")}, InvalidType, ""},
		{"too large", File{ContentType: "image/png", Data: make([]byte, DefaultMaxBytes+1)}, Oversize, ""},
		{"exactly max", File{ContentType: "image/png", Data: make([]byte, DefaultMaxBytes)}, "", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := u.Validate(tt.file)
			if tt.wantKind != "" {
				assert.True(t, IsKind(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.ContentType)
		})
	}
}

func TestUpload_OversizeRejectedBeforeNetwork(t *testing.T) {
	store := &fakeStore{}
	u := newTestUploader(store, nil)

	_, err := u.UploadWithOptionalCompression(context.Background(),
		File{Name: "big.jpg", ContentType: "image/jpeg", Data: fakeJPEG(6 * 1024 * 1024)}, FolderPosts, CompressOptions{})

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, Oversize, uerr.Kind)
	assert.Equal(t, 0, store.count())
}

func TestUpload_CompressesAboveThreshold(t *testing.T) {
	store := &fakeStore{}
	compressed := fakeJPEG(300 * 1024)
	comp := &fakeCompressor{out: compressed}
	u := newTestUploader(store, comp)

	url, err := u.UploadWithOptionalCompression(context.Background(),
		File{Name: "photo.jpg", ContentType: "image/jpeg", Data: fakeJPEG(2 * 1024 * 1024)}, FolderPosts, CompressOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, comp.calls)
	require.Equal(t, 1, store.count())
	put := store.puts[0]
	assert.Equal(t, compressed, put.body)
	assert.Equal(t, "posts/1700000000000_11111111-2222-3333-4444-555555555555.jpg", put.key)
	assert.Equal(t, "image/jpeg", put.contentType)
	assert.Equal(t, "public, max-age=31536000", put.cacheControl)
	assert.Equal(t, "https://cdn.example.com/"+put.key, url)
}

func TestUpload_SmallFileNotCompressed(t *testing.T) {
	store := &fakeStore{}
	comp := &fakeCompressor{}
	u := newTestUploader(store, comp)

	data := fakeJPEG(512 * 1024)
	_, err := u.UploadWithOptionalCompression(context.Background(),
		File{Name: "small.jpeg", Data: data}, FolderAvatars, CompressOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, comp.calls)
	assert.Equal(t, data, store.puts[0].body)
	assert.Equal(t, "avatars/1700000000000_11111111-2222-3333-4444-555555555555.jpeg", store.puts[0].key)
}

func TestUpload_BackendFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("bucket gone")}
	u := newTestUploader(store, nil)

	_, err := u.Upload(context.Background(), File{Name: "a.jpg", Data: fakeJPEG(100)}, FolderTemp)
	assert.True(t, IsKind(err, BackendFailure))
	assert.ErrorContains(t, err, "bucket gone")
}

func TestUploadMany(t *testing.T) {
	store := &fakeStore{}
	u := newTestUploader(store, nil)

	files := []File{
		{Name: "a.jpg", Data: fakeJPEG(100)},
		{Name: "b.jpg", Data: fakeJPEG(200)},
		{Name: "c.jpg", Data: fakeJPEG(300)},
	}
	urls, err := u.UploadMany(context.Background(), files, FolderPosts, CompressOptions{})
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Equal(t, 3, store.count())
}

func TestUploadMany_InvalidFileStopsEverything(t *testing.T) {
	store := &fakeStore{}
	u := newTestUploader(store, nil)

	files := []File{
		{Name: "a.jpg", Data: fakeJPEG(100)},
		{Name: "b.txt", Data: []byte("not an image")},
	}
	_, err := u.UploadMany(context.Background(), files, FolderPosts, CompressOptions{})
	assert.True(t, IsKind(err, InvalidType))
	assert.Equal(t, 0, store.count())
}

func TestWithRetry(t *testing.T) {
	store := &fakeStore{fails: 2}
	u := newTestUploader(store, nil)
	f := File{Name: "a.jpg", Data: fakeJPEG(100)}

	attempts := 0
	url, err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) (string, error) {
		attempts++
		return u.Upload(ctx, f, FolderTemp)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NotEmpty(t, url)
}

func TestWithRetry_DoesNotRetryValidation(t *testing.T) {
	u := newTestUploader(&fakeStore{}, nil)

	attempts := 0
	_, err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) (string, error) {
		attempts++
		return u.Upload(ctx, File{Name: "a.txt", Data: []byte("text")}, FolderTemp)
	})
	assert.True(t, IsKind(err, InvalidType))
	assert.Equal(t, 1, attempts)
}

func TestObjectNameFromURL(t *testing.T) {
	name, ok := ObjectNameFromURL("https://cdn.example.com/posts/123_abc.jpg")
	assert.True(t, ok)
	assert.Equal(t, "123_abc.jpg", name)

	_, ok = ObjectNameFromURL("not a url")
	assert.False(t, ok)

	key, ok := ObjectKeyFromURL("https://cdn.example.com/", "https://cdn.example.com/posts/123_abc.jpg")
	assert.True(t, ok)
	assert.Equal(t, "posts/123_abc.jpg", key)
}

func TestCheckURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/ok.jpg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, CheckURL(context.Background(), srv.Client(), srv.URL+"/ok.jpg"))
	assert.False(t, CheckURL(context.Background(), srv.Client(), srv.URL+"/missing.jpg"))
}

func noiseImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func TestImageCompressor_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, noiseImage(1200, 800), &jpeg.Options{Quality: 100}))
	orig := File{Name: "noise.jpg", ContentType: "image/jpeg", Data: buf.Bytes()}

	out, err := ImageCompressor{}.Compress(orig, CompressOptions{MaxWidthOrHeight: 600})
	require.NoError(t, err)

	assert.Less(t, out.Size(), orig.Size())
	assert.Equal(t, "image/jpeg", out.ContentType)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
}

func TestImageCompressor_PNGKeepsType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(400, 300)))
	orig := File{Name: "noise.png", ContentType: "image/png", Data: buf.Bytes()}

	out, err := ImageCompressor{}.Compress(orig, CompressOptions{MaxWidthOrHeight: 100})
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Less(t, out.Size(), orig.Size())
}

func TestImageCompressor_GIFUntouched(t *testing.T) {
	orig := File{Name: "a.gif", ContentType: "image/gif", Data: []byte("GIF89a....")}
	out, err := ImageCompressor{}.Compress(orig, CompressOptions{})
	require.NoError(t, err)
	assert.Equal(t, orig, out)
}

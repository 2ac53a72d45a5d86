// Package upload validates images, optionally compresses them and stores
// them in object storage under collision-free keys.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Storage folders.
const (
	FolderAvatars = "avatars/"
	FolderPosts   = "posts/"
	FolderTemp    = "temp/"
)

const (
	DefaultMaxBytes          int64 = 5 * 1024 * 1024
	DefaultCompressThreshold int64 = 1 * 1024 * 1024

	// CacheControl is sent with every stored object.
	CacheControl = "public, max-age=31536000"

	// DefaultAvatarURL is shown for identities without a photo.
	DefaultAvatarURL = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcSCvBNjFR_6BVhW3lFNwF0oEk2N8JXjeiaSqg&s"
)

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AllowedTypes lists the accepted content types.
func AllowedTypes() []string {
	return []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
}

// File is an image held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the length of the payload.
func (f File) Size() int64 { return int64(len(f.Data)) }

// ReadFile loads path with its type sniffed from content.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// ObjectStore is where uploads end up.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, cacheControl string) error
	// PublicURL returns the address the object is served from.
	PublicURL(key string) string
}

// Compressor shrinks a file toward opts.
type Compressor interface {
	Compress(f File, opts CompressOptions) (File, error)
}

// Options configures an Uploader.
type Options struct {
	Store             ObjectStore
	MaxBytes          int64
	CompressThreshold int64
	Compressor        Compressor
	Logger            zerolog.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Uploader stores images.
type Uploader struct {
	store      ObjectStore
	maxBytes   int64
	threshold  int64
	compressor Compressor
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// New builds an Uploader with defaults for unset options.
func New(opts Options) *Uploader {
	u := &Uploader{
		store:      opts.Store,
		maxBytes:   opts.MaxBytes,
		threshold:  opts.CompressThreshold,
		compressor: opts.Compressor,
		logger:     opts.Logger.With().Str("component", "upload").Logger(),
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if u.maxBytes <= 0 {
		u.maxBytes = DefaultMaxBytes
	}
	if u.threshold <= 0 {
		u.threshold = DefaultCompressThreshold
	}
	if u.compressor == nil {
		u.compressor = ImageCompressor{}
	}
	if u.now == nil {
		u.now = time.Now
	}
	if u.newID == nil {
		u.newID = uuid.NewString
	}
	return u
}

// MaxBytes returns the size limit.
func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// Validate checks type and size without any I/O. An undeclared type is
// sniffed from content. The returned file carries the resolved type.
func (u *Uploader) Validate(f File) (File, error) {
	return validate(f, u.maxBytes)
}

func validate(f File, maxBytes int64) (File, error) {
	ct := normalizeType(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeType(mimetype.Detect(f.Data).String())
	}
	if _, ok := allowedTypes[ct]; !ok {
		return f, &Error{Kind: InvalidType, ContentType: ct}
	}
	if f.Size() > maxBytes {
		return f, &Error{Kind: Oversize, ContentType: ct, Size: f.Size(), Max: maxBytes}
	}
	f.ContentType = ct
	return f, nil
}

func normalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

// ObjectKey returns {folder}{unixMillis}_{uuid}.{ext}.
func (u *Uploader) ObjectKey(folder, ext string) string {
	return fmt.Sprintf("%s%d_%s.%s", folder, u.now().UnixMilli(), u.newID(), ext)
}

// extension prefers the original file name and falls back to the type.
func extension(f File) string {
	if ext := strings.TrimPrefix(filepath.Ext(f.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return allowedTypes[f.ContentType]
}

// Upload validates and stores f as-is.
func (u *Uploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	f, err := u.Validate(f)
	if err != nil {
		return "", err
	}
	return u.put(ctx, f, folder)
}

// UploadWithOptionalCompression validates f, compresses it when it exceeds
// the threshold, and stores the compressed bytes.
func (u *Uploader) UploadWithOptionalCompression(ctx context.Context, f File, folder string, opts CompressOptions) (string, error) {
	f, err := u.Validate(f)
	if err != nil {
		return "", err
	}

	if f.Size() > u.threshold {
		if opts.MaxSizeBytes <= 0 {
			opts.MaxSizeBytes = u.threshold
		}
		compressed, err := u.compressor.Compress(f, opts)
		if err != nil {
			return "", &Error{Kind: BackendFailure, ContentType: f.ContentType, Err: fmt.Errorf("compress: %w", err)}
		}
		u.logger.Debug().
			Str("name", f.Name).
			Int64("original_bytes", f.Size()).
			Int64("compressed_bytes", compressed.Size()).
			Msg("Compressed image")
		f = compressed
	}

	return u.put(ctx, f, folder)
}

func (u *Uploader) put(ctx context.Context, f File, folder string) (string, error) {
	key := u.ObjectKey(folder, extension(f))
	if err := u.store.PutObject(ctx, key, bytes.NewReader(f.Data), f.Size(), f.ContentType, CacheControl); err != nil {
		u.logger.Error().Err(err).Str("key", key).Msg("Failed to store object")
		return "", &Error{Kind: BackendFailure, ContentType: f.ContentType, Size: f.Size(), Err: err}
	}

	url := u.store.PublicURL(key)
	u.logger.Info().Str("key", key).Str("url", url).Msg("Uploaded image")
	return url, nil
}

// UploadMany uploads files concurrently. Either every URL is returned, in
// input order, or the first error.
func (u *Uploader) UploadMany(ctx context.Context, files []File, folder string, opts CompressOptions) ([]string, error) {
	for _, f := range files {
		if _, err := u.Validate(f); err != nil {
			return nil, err
		}
	}

	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		g.Go(func() error {
			url, err := u.UploadWithOptionalCompression(gctx, f, folder, opts)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// CompressOptions bounds the compressed output.
type CompressOptions struct {
	// MaxSizeBytes is the target size; zero means the upload threshold.
	MaxSizeBytes int64
	// MaxWidthOrHeight caps the longer edge; zero means 1920.
	MaxWidthOrHeight uint
}

const (
	defaultMaxEdge = 1920
	minQuality     = 40
	startQuality   = 85
	qualityStep    = 10
)

// ImageCompressor downsizes to the edge limit and re-encodes, lowering JPEG
// quality until the target size is met or the quality floor is reached.
// GIFs are returned untouched so animation survives. WebP has no encoder in
// reach and is re-encoded as JPEG.
type ImageCompressor struct{}

func (ImageCompressor) Compress(f File, opts CompressOptions) (File, error) {
	if f.ContentType == "image/gif" {
		return f, nil
	}

	maxEdge := opts.MaxWidthOrHeight
	if maxEdge == 0 {
		maxEdge = defaultMaxEdge
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	img = fit(img, maxEdge)

	switch f.ContentType {
	case "image/png":
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return File{}, fmt.Errorf("encode png: %w", err)
		}
		return smaller(f, File{Name: f.Name, ContentType: f.ContentType, Data: buf.Bytes()}), nil
	default:
		data, err := encodeJPEG(img, opts.MaxSizeBytes)
		if err != nil {
			return File{}, err
		}
		out := File{Name: withExt(f.Name, "jpg"), ContentType: "image/jpeg", Data: data}
		if f.ContentType == "image/jpeg" {
			out.Name = f.Name
			return smaller(f, out), nil
		}
		return out, nil
	}
}

func fit(img image.Image, maxEdge uint) image.Image {
	b := img.Bounds()
	w, h := uint(b.Dx()), uint(b.Dy())
	if w <= maxEdge && h <= maxEdge {
		return img
	}
	if w >= h {
		return resize.Resize(maxEdge, 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, maxEdge, img, resize.Lanczos3)
}

func encodeJPEG(img image.Image, target int64) ([]byte, error) {
	var buf bytes.Buffer
	for q := startQuality; ; q -= qualityStep {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if target <= 0 || int64(buf.Len()) <= target || q-qualityStep < minQuality {
			return buf.Bytes(), nil
		}
	}
}

// smaller keeps the original when re-encoding did not help.
func smaller(orig, candidate File) File {
	if candidate.Size() < orig.Size() {
		return candidate
	}
	return orig
}

func withExt(name, ext string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
}

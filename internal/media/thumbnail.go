// Package media produces derived images for stock photos.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultThumbnailWidth is the listing thumbnail width in pixels.
const DefaultThumbnailWidth = 320

// ErrUnsupportedImage is returned for images the decoder cannot read (WebP among them).
var ErrUnsupportedImage = errors.New("media: unsupported image format")

// Thumbnail decodes r and returns a JPEG scaled to width, keeping the aspect ratio.
func Thumbnail(r io.Reader, width int) ([]byte, error) {
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("media: decode: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("media: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailKey derives the thumbnail object key stored next to the original.
func ThumbnailKey(objectKey string) string {
	dir := path.Dir(objectKey)
	base := strings.TrimSuffix(path.Base(objectKey), path.Ext(objectKey))
	return path.Join(dir, "thumbs", base+".jpg")
}

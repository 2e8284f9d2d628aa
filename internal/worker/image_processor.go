package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// ObjectStore is the slice of storage the processor needs.
type ObjectStore interface {
	CreateFile(objectPath string) (io.WriteCloser, error)
	ReadFile(objectPath string) (io.ReadCloser, error)
	DeleteFile(objectPath string) error
}

// ThumbnailSizes are the reviewer thumbnail widths, by name.
var ThumbnailSizes = []struct {
	Name  string
	Width int
}{
	{"small", 150},
	{"medium", 400},
}

type ImageProcessor struct {
	store  ObjectStore
	logger *zap.Logger
}

func NewImageProcessor(store ObjectStore, logger *zap.Logger) *ImageProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageProcessor{store: store, logger: logger}
}

// ProcessImage decodes one stored evidence image and writes its reviewer
// thumbnails next to it. It returns the thumbnail paths and the original
// dimensions.
func (ip *ImageProcessor) ProcessImage(ctx context.Context, objectPath string) (thumbs []string, width, height int, err error) {
	r, err := ip.store.ReadFile(objectPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open %s: %w", objectPath, err)
	}
	defer r.Close()

	// Phone cameras store rotation in EXIF rather than in the pixels.
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", objectPath, err)
	}
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	for _, size := range ThumbnailSizes {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		thumbPath := thumbnailPath(objectPath, size.Name)
		if err := ip.saveThumbnail(thumbPath, img, size.Width); err != nil {
			return nil, 0, 0, err
		}
		thumbs = append(thumbs, thumbPath)
	}
	return thumbs, width, height, nil
}

func (ip *ImageProcessor) saveThumbnail(thumbPath string, img image.Image, maxWidth int) error {
	thumb := img
	if img.Bounds().Dx() > maxWidth {
		thumb = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	w, err := ip.store.CreateFile(thumbPath)
	if errors.Is(err, storage.ErrExists) {
		// Written by an earlier attempt of the same job. Partial writes are
		// removed below, so an existing thumbnail is complete.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create thumbnail %s: %w", thumbPath, err)
	}
	if err := imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		w.Close()
		ip.discard(thumbPath)
		return fmt.Errorf("encode thumbnail %s: %w", thumbPath, err)
	}
	if err := w.Close(); err != nil {
		ip.discard(thumbPath)
		return fmt.Errorf("close thumbnail %s: %w", thumbPath, err)
	}
	return nil
}

// discard removes a partly written thumbnail so the next attempt rewrites it.
func (ip *ImageProcessor) discard(thumbPath string) {
	if err := ip.store.DeleteFile(thumbPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		ip.logger.Warn("failed to remove partial thumbnail", zap.String("path", thumbPath), zap.Error(err))
	}
}

// thumbnailPath maps "{user}/verification/selfie_1.jpg" to
// "{user}/verification/thumbs/selfie_1-small.jpg".
func thumbnailPath(objectPath, size string) string {
	dir, name := path.Split(objectPath)
	name = strings.TrimSuffix(name, path.Ext(name))
	return dir + "thumbs/" + name + "-" + size + ".jpg"
}

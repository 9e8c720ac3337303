// Package io loads source images into pixel buffers and writes stage
// snapshots back to disk.
package io

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"vektor/internal/engine"
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".gif", ".tiff", ".tif", ".bmp", ".webp"}

// ImageLoader handles image file operations.
type ImageLoader struct {
	logger logrus.FieldLogger
	// maxSide downscales larger sources so the longer side fits. Zero keeps
	// the original size.
	maxSide int
}

func NewImageLoader(logger logrus.FieldLogger, maxSide int) *ImageLoader {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &ImageLoader{logger: logger, maxSide: maxSide}
}

// LoadImage decodes the file at path.
func (il *ImageLoader) LoadImage(path string) (engine.PixelBuffer, error) {
	il.logger.WithField("filepath", path).Debug("Loading image")

	if !IsSupportedImageFormat(path) {
		return engine.PixelBuffer{}, fmt.Errorf("unsupported image format: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return engine.PixelBuffer{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return il.Decode(f, path)
}

// Decode reads an image from r. name is only used in logs and errors.
func (il *ImageLoader) Decode(r io.Reader, name string) (engine.PixelBuffer, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return engine.PixelBuffer{}, fmt.Errorf("decode %s: %w", name, err)
	}
	buf := engine.FromImage(il.fit(img))
	if buf.Empty() {
		return engine.PixelBuffer{}, fmt.Errorf("image has no pixels: %s", name)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": name,
		"format":   format,
		"width":    buf.Width,
		"height":   buf.Height,
	}).Info("Image loaded successfully")
	return buf, nil
}

func (il *ImageLoader) fit(img image.Image) image.Image {
	b := img.Bounds()
	side := max(b.Dx(), b.Dy())
	if il.maxSide <= 0 || side <= il.maxSide {
		return img
	}
	scale := float64(il.maxSide) / float64(side)
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	il.logger.WithFields(logrus.Fields{
		"from_width":  b.Dx(),
		"from_height": b.Dy(),
		"width":       w,
		"height":      h,
	}).Debug("Image downscaled")
	return dst
}

// SaveImage writes buf as a PNG file.
func (il *ImageLoader) SaveImage(buf engine.PixelBuffer, path string) error {
	il.logger.WithField("filepath", path).Debug("Saving image")

	if buf.Empty() {
		return fmt.Errorf("cannot save empty image")
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" {
		return fmt.Errorf("snapshots are written as png, got %q", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := png.Encode(w, buf.RGBA()); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    buf.Width,
		"height":   buf.Height,
	}).Info("Image saved successfully")
	return nil
}

// IsSupportedImageFormat checks the file extension only.
func IsSupportedImageFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// SupportedExtensions lists the accepted file extensions, for file dialogs.
func SupportedExtensions() []string {
	return append([]string(nil), supportedFormats...)
}

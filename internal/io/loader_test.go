package io

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"vektor/internal/engine"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	il := NewImageLoader(nil, 0)
	src := engine.FromImage(checker(6, 4))
	path := filepath.Join(t.TempDir(), "stage.png")

	require.NoError(t, il.SaveImage(src, path))
	got, err := il.LoadImage(path)
	require.NoError(t, err)
	assert.True(t, src.Equal(got))
}

func TestDecodeRegisteredFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, checker(3, 5)))

	got, err := NewImageLoader(nil, 0).Decode(&buf, "in.bmp")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Width)
	assert.Equal(t, 5, got.Height)
	assert.Equal(t, []byte{255, 0, 0, 255}, got.Pix[:4])
}

func TestLoadDownscalesLargeImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, checker(40, 20)))
	require.NoError(t, f.Close())

	got, err := NewImageLoader(nil, 10).LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Width)
	assert.Equal(t, 5, got.Height)
}

func TestLoaderRejects(t *testing.T) {
	il := NewImageLoader(nil, 0)

	_, err := il.LoadImage("notes.txt")
	assert.ErrorContains(t, err, "unsupported image format")

	_, err = il.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = il.Decode(bytes.NewReader([]byte("not an image")), "x.png")
	assert.ErrorIs(t, err, image.ErrFormat)

	assert.Error(t, il.SaveImage(engine.PixelBuffer{}, filepath.Join(t.TempDir(), "e.png")))
	assert.Error(t, il.SaveImage(engine.FromImage(checker(1, 1)), filepath.Join(t.TempDir(), "e.jpg")))
}

func TestSupportedFormats(t *testing.T) {
	assert.True(t, IsSupportedImageFormat("a/B.PNG"))
	assert.True(t, IsSupportedImageFormat("x.webp"))
	assert.False(t, IsSupportedImageFormat("x"))
	assert.Contains(t, SupportedExtensions(), ".tiff")
}

package media

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igarchive/pkg/logger"
)

// writeTestImage writes a width x height PNG filled with a solid color
func writeTestImage(t *testing.T, path string, width, height int, fill color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestGenerateSquareThumbnail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "media.png")
	dst := filepath.Join(dir, "media_thumbnail.png")
	writeTestImage(t, src, 640, 480, color.RGBA{R: 200, A: 255})

	g := NewGenerator(logger.NewNopLogger())
	require.NoError(t, g.Generate(src, dst, 320, ShapeSquare))

	thumb := decodePNG(t, dst)
	assert.Equal(t, 320, thumb.Bounds().Dx())
	assert.Equal(t, 320, thumb.Bounds().Dy())

	// solid input stays solid after crop and scale
	_, _, _, a := thumb.At(0, 0).RGBA()
	assert.NotZero(t, a)
	_, _, _, a = thumb.At(160, 160).RGBA()
	assert.NotZero(t, a)
}

func TestGenerateCircleThumbnail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "avatar.png")
	dst := filepath.Join(dir, "avatar_thumbnail.png")
	writeTestImage(t, src, 256, 256, color.RGBA{G: 150, A: 255})

	g := NewGenerator(logger.NewNopLogger())
	require.NoError(t, g.Generate(src, dst, 128, ShapeCircle))

	thumb := decodePNG(t, dst)
	assert.Equal(t, 128, thumb.Bounds().Dx())

	// the center is opaque, the corners are masked away
	_, _, _, center := thumb.At(64, 64).RGBA()
	assert.NotZero(t, center)
	_, _, _, corner := thumb.At(0, 0).RGBA()
	assert.Zero(t, corner)
	_, _, _, corner = thumb.At(127, 127).RGBA()
	assert.Zero(t, corner)
}

func TestGeneratePortraitCropsCenter(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tall.png")
	dst := filepath.Join(dir, "tall_thumbnail.png")
	writeTestImage(t, src, 100, 300, color.RGBA{B: 120, A: 255})

	g := NewGenerator(logger.NewNopLogger())
	require.NoError(t, g.Generate(src, dst, 64, ShapeSquare))

	thumb := decodePNG(t, dst)
	assert.Equal(t, 64, thumb.Bounds().Dx())
	assert.Equal(t, 64, thumb.Bounds().Dy())
}

func TestGenerateRejectsMissingFile(t *testing.T) {
	g := NewGenerator(logger.NewNopLogger())
	err := g.Generate(filepath.Join(t.TempDir(), "nope.png"), filepath.Join(t.TempDir(), "out.png"), 64, ShapeSquare)
	assert.Error(t, err)
}

func TestGenerateRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))

	g := NewGenerator(logger.NewNopLogger())
	err := g.Generate(src, filepath.Join(dir, "out.png"), 64, ShapeSquare)
	assert.Error(t, err)
}

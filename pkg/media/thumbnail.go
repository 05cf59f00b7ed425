package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"igarchive/pkg/logger"
)

// Shape selects the thumbnail mask
type Shape int

const (
	// ShapeSquare keeps the full cropped square
	ShapeSquare Shape = iota
	// ShapeCircle masks the square to a circle, used for avatars and
	// highlight covers
	ShapeCircle
)

// Generator renders PNG thumbnails for archived media
type Generator struct {
	logger logger.Logger
}

// NewGenerator creates a thumbnail generator
func NewGenerator(log logger.Logger) *Generator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Generator{logger: log}
}

// Generate writes a square (or circular) PNG thumbnail of the media
// file next to destPath. Videos are thumbnailed from their first frame.
func (g *Generator) Generate(mediaPath, destPath string, size int, shape Shape) error {
	src, cleanup, err := g.sourceImage(mediaPath)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}

	thumb := scaleSquare(cropSquare(src), size)
	if shape == ShapeCircle {
		thumb = maskCircle(thumb)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	if err := png.Encode(out, thumb); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}

	g.logger.DebugWithFields("thumbnail rendered", map[string]interface{}{
		"source": filepath.Base(mediaPath),
		"size":   size,
	})
	return nil
}

// videoExtensions are thumbnailed via their first frame
var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
}

// sourceImage opens the media file as an image, extracting the first
// frame first when the file is a video. The returned cleanup removes
// any temporary frame file.
func (g *Generator) sourceImage(mediaPath string) (image.Image, func(), error) {
	cleanup := func() {}

	if videoExtensions[strings.ToLower(filepath.Ext(mediaPath))] {
		framePath, err := extractFirstFrame(mediaPath)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { os.Remove(framePath) }
		mediaPath = framePath
	}

	f, err := os.Open(mediaPath)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to decode media %s: %w", filepath.Base(mediaPath), err)
	}
	return img, cleanup, nil
}

// extractFirstFrame shells out to ffmpeg for the first video frame
func extractFirstFrame(videoPath string) (string, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available for video thumbnail: %w", err)
	}

	framePath := videoPath + ".frame.png"
	cmd := exec.Command(ffmpeg, "-y", "-i", videoPath, "-vframes", "1", framePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(framePath)
		return "", fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, string(out))
	}
	return framePath, nil
}

// cropSquare crops the image to its centered largest square
func cropSquare(src image.Image) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == height {
		return src
	}

	side := width
	if height < side {
		side = height
	}
	x0 := bounds.Min.X + (width-side)/2
	y0 := bounds.Min.Y + (height-side)/2

	cropped := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(cropped, cropped.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return cropped
}

// scaleSquare resizes a square image to size x size with nearest
// neighbor sampling, good enough at thumbnail scale.
func scaleSquare(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	side := bounds.Dx()

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		srcY := bounds.Min.Y + y*side/size
		for x := 0; x < size; x++ {
			srcX := bounds.Min.X + x*side/size
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

// maskCircle clears everything outside the inscribed circle
func maskCircle(src *image.RGBA) *image.RGBA {
	size := src.Bounds().Dx()
	radius := float64(size) / 2
	center := radius - 0.5

	for y := 0; y < size; y++ {
		dy := float64(y) - center
		for x := 0; x < size; x++ {
			dx := float64(x) - center
			if dx*dx+dy*dy > radius*radius {
				src.SetRGBA(x, y, color.RGBA{})
			}
		}
	}
	return src
}

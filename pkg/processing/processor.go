package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// JPEGMime is the media type of every processed result.
const JPEGMime = "image/jpeg"

var ErrUnknownFormat = errors.New("image: unknown or unsupported format")

// Processor handles image decoding and encoding
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads an image from a URL and returns its bytes together with the
// declared Content-Type.
func (p *Processor) Fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Image-Cropper/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Decode decodes image bytes, honouring EXIF orientation, with a WebP fallback.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, ErrUnknownFormat
}

// JPEGQuality maps a 0..1 quality onto the 1..100 scale of the JPEG encoder.
func JPEGQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// EncodeJPEG encodes img as a JPEG at the given 0..1 quality.
func (p *Processor) EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(quality))); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI renders encoded bytes as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Fit scales img down so neither side exceeds maxDim. Zero disables it.
func (p *Processor) Fit(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// Thumbnail produces a small preview that fits in a size x size square.
func (p *Processor) Thumbnail(img image.Image, size int) image.Image {
	if size <= 0 {
		size = 96
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateCropOverlay draws the crop rectangle (in image pixels relative to the
// image origin) over a copy of img, with a crosshair on its centre.
func (p *Processor) CreateCropOverlay(img image.Image, crop image.Rectangle) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 170, 255, 255}
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	shadeOutside(nrgba, crop)
	drawBox(nrgba, crop, gold, stroke)

	px := (crop.Min.X + crop.Max.X) / 2
	py := (crop.Min.Y + crop.Max.Y) / 2
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

// shadeOutside halves the brightness of every pixel outside r.
func shadeOutside(img *image.NRGBA, r image.Rectangle) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		i := y * img.Stride
		for x := 0; x < b.Dx(); x++ {
			if !(image.Point{x, y}).In(r) {
				img.Pix[i+0] /= 2
				img.Pix[i+1] /= 2
				img.Pix[i+2] /= 2
			}
			i += 4
		}
	}
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

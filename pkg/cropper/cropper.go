package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	ErrReleased     = errors.New("crop box released")
	ErrInvalidImage = errors.New("invalid image dimensions")
	ErrNotMovable   = errors.New("crop box is not movable")
	ErrNotResizable = errors.New("crop box is not resizable")
	ErrEmptyCrop    = errors.New("empty crop rectangle")
)

// minSize is the smallest edge, in pixels, a crop box may shrink to.
const minSize = 1.0

// AspectRatio represents a named crop ratio. A zero Width or Height means free.
type AspectRatio struct {
	Width  int
	Height int
	Name   string
}

// Common aspect ratios
var (
	Free       = AspectRatio{0, 0, "free"}
	Square     = AspectRatio{1, 1, "square"}
	Portrait   = AspectRatio{3, 4, "portrait"}
	Landscape  = AspectRatio{4, 3, "landscape"}
	Widescreen = AspectRatio{16, 9, "widescreen"}
	Instagram  = AspectRatio{4, 5, "instagram"}
	Story      = AspectRatio{9, 16, "story"}
)

// CommonAspectRatios returns the selectable ratios in display order.
func CommonAspectRatios() []AspectRatio {
	return []AspectRatio{Free, Square, Portrait, Landscape, Widescreen, Instagram, Story}
}

// ParseAspectRatio looks a ratio up by name ("square") or by "W:H" ("16:9").
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Free, nil
	}
	for _, r := range CommonAspectRatios() {
		if r.Name == s || r.String() == s {
			return r, nil
		}
	}
	return AspectRatio{}, fmt.Errorf("unknown aspect ratio %q", s)
}

// Value returns width/height, or 0 for a free ratio.
func (a AspectRatio) Value() float64 {
	if a.Width <= 0 || a.Height <= 0 {
		return 0
	}
	return float64(a.Width) / float64(a.Height)
}

// IsFree reports whether the ratio leaves the crop box unconstrained.
func (a AspectRatio) IsFree() bool {
	return a.Value() == 0
}

func (a AspectRatio) String() string {
	if a.IsFree() {
		return "free"
	}
	return fmt.Sprintf("%d:%d", a.Width, a.Height)
}

// DragMode mirrors what dragging over the image does in an interactive editor.
type DragMode string

const (
	DragMove DragMode = "move"
	DragCrop DragMode = "crop"
	DragNone DragMode = "none"
)

// Config holds the construction options of a crop box
type Config struct {
	AspectRatio  AspectRatio
	AutoCropArea float64
	Movable      bool
	Resizable    bool
	Center       bool
	DragMode     DragMode
}

// DefaultConfig returns a centered, movable, resizable box covering 80% of the image.
func DefaultConfig() Config {
	return Config{
		AspectRatio:  Free,
		AutoCropArea: 0.8,
		Movable:      true,
		Resizable:    true,
		Center:       true,
		DragMode:     DragMove,
	}
}

// Rect is a crop rectangle in image pixels, relative to the image origin.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the centre point of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the rectangle.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// CropBox is a live, adjustable crop rectangle over one image.
// It is not safe for concurrent use; the owning session serialises access.
type CropBox struct {
	img      image.Image
	config   Config
	ratio    float64
	imgW     float64
	imgH     float64
	rect     Rect
	released bool
}

// New builds a crop box over img with its default rectangle.
func New(img image.Image, config Config) (*CropBox, error) {
	if img == nil {
		return nil, ErrInvalidImage
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, ErrInvalidImage
	}
	if config.AutoCropArea <= 0 || config.AutoCropArea > 1 {
		config.AutoCropArea = 0.8
	}

	c := &CropBox{
		img:    img,
		config: config,
		ratio:  config.AspectRatio.Value(),
		imgW:   float64(bounds.Dx()),
		imgH:   float64(bounds.Dy()),
	}
	c.rect = c.defaultRect()
	return c, nil
}

// Image returns the image the box was built over.
func (c *CropBox) Image() image.Image {
	return c.img
}

// Config returns the options the box was built with, with the current ratio.
func (c *CropBox) Config() Config {
	return c.config
}

// Data returns the current crop rectangle.
func (c *CropBox) Data() (Rect, error) {
	if c.released {
		return Rect{}, ErrReleased
	}
	return c.rect, nil
}

// SetData replaces the crop rectangle, constrained to the ratio and the image.
func (c *CropBox) SetData(r Rect) error {
	if c.released {
		return ErrReleased
	}
	c.rect = c.constrain(r)
	return nil
}

// Move pans the crop box, stopping at the image edges.
func (c *CropBox) Move(dx, dy float64) error {
	if c.released {
		return ErrReleased
	}
	if !c.config.Movable {
		return ErrNotMovable
	}
	r := c.rect
	r.X += dx
	r.Y += dy
	c.rect = c.constrain(r)
	return nil
}

// Resize grows or shrinks the box from its top-left corner. With a fixed ratio
// the width change wins and the height follows.
func (c *CropBox) Resize(dw, dh float64) error {
	if c.released {
		return ErrReleased
	}
	if !c.config.Resizable {
		return ErrNotResizable
	}
	r := c.rect
	if c.ratio > 0 {
		if dw != 0 {
			r.Width += dw
			r.Height = r.Width / c.ratio
		} else {
			r.Height += dh
			r.Width = r.Height * c.ratio
		}
	} else {
		r.Width += dw
		r.Height += dh
	}
	c.rect = c.constrain(r)
	return nil
}

// SetAspectRatio changes the ratio in place. The centre of the current
// rectangle is kept, and so is its area unless the image edges force it smaller.
func (c *CropBox) SetAspectRatio(ratio AspectRatio) error {
	if c.released {
		return ErrReleased
	}
	c.config.AspectRatio = ratio
	c.ratio = ratio.Value()
	if c.ratio == 0 {
		return nil
	}

	cx, cy := c.rect.Center()
	width := math.Sqrt(c.rect.Area() * c.ratio)
	c.rect = c.fitAround(cx, cy, width)
	return nil
}

// Reset restores the default centered rectangle.
func (c *CropBox) Reset() error {
	if c.released {
		return ErrReleased
	}
	c.rect = c.defaultRect()
	return nil
}

// Rasterize copies the pixels under the crop box into a new image.
func (c *CropBox) Rasterize() (image.Image, error) {
	if c.released {
		return nil, ErrReleased
	}
	bounds := c.img.Bounds()
	x0 := int(c.rect.X + 0.5)
	y0 := int(c.rect.Y + 0.5)
	x1 := int(c.rect.X + c.rect.Width + 0.5)
	y1 := int(c.rect.Y + c.rect.Height + 0.5)

	rect := image.Rect(x0, y0, x1, y1).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}
	return imaging.Crop(c.img, rect), nil
}

// Release drops the image reference. It reports false if the box was already released.
func (c *CropBox) Release() bool {
	if c.released {
		return false
	}
	c.released = true
	c.img = nil
	return true
}

// Released reports whether Release has been called.
func (c *CropBox) Released() bool {
	return c.released
}

func (c *CropBox) defaultRect() Rect {
	w, h := c.imgW, c.imgH
	if c.ratio > 0 {
		if h*c.ratio > w {
			h = w / c.ratio
		} else {
			w = h * c.ratio
		}
	}
	w *= c.config.AutoCropArea
	h *= c.config.AutoCropArea

	if !c.config.Center {
		return Rect{Width: w, Height: h}
	}
	return Rect{
		X:      (c.imgW - w) / 2,
		Y:      (c.imgH - h) / 2,
		Width:  w,
		Height: h,
	}
}

// fitAround places a ratio-conforming box of the given width centred on
// (cx, cy), shrinking it to the largest box the image edges allow there.
func (c *CropBox) fitAround(cx, cy, width float64) Rect {
	halfWMax := math.Min(cx, c.imgW-cx)
	halfHMax := math.Min(cy, c.imgH-cy)
	maxWidth := math.Min(2*halfWMax, c.ratio*(2*halfHMax))

	if maxWidth < minSize {
		// centre sits on an edge; keep the size and slide inward instead
		return c.constrain(Rect{X: cx - width/2, Y: cy - width/c.ratio/2, Width: width, Height: width / c.ratio})
	}

	width = math.Min(width, maxWidth)
	height := width / c.ratio
	return Rect{
		X:      cx - width/2,
		Y:      cy - height/2,
		Width:  width,
		Height: height,
	}
}

func (c *CropBox) constrain(r Rect) Rect {
	if c.ratio > 0 {
		r.Width = math.Max(r.Width, math.Max(minSize, minSize*c.ratio))
		r.Height = r.Width / c.ratio
	} else {
		r.Width = math.Max(r.Width, minSize)
		r.Height = math.Max(r.Height, minSize)
	}
	if r.Width > c.imgW {
		r.Width = c.imgW
		if c.ratio > 0 {
			r.Height = r.Width / c.ratio
		}
	}
	if r.Height > c.imgH {
		r.Height = c.imgH
		if c.ratio > 0 {
			r.Width = r.Height * c.ratio
		}
	}
	r.X = clamp(r.X, 0, c.imgW-r.Width)
	r.Y = clamp(r.Y, 0, c.imgH-r.Height)
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package imagecropper loads a batch of images, lets the user crop each one to
// a chosen aspect ratio, exports crops as JPEG and bundles them into a zip.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		imagecropper "github.com/menta2k/image-cropper"
//		"github.com/menta2k/image-cropper/pkg/cropper"
//		"github.com/menta2k/image-cropper/pkg/registry"
//	)
//
//	func main() {
//		ws := imagecropper.New(imagecropper.DefaultOptions())
//		defer ws.Close()
//
//		data, err := os.ReadFile("photo.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//		ws.Load([]registry.File{{Name: "photo.png", Type: "image/png", Data: data}})
//		ws.SetAspectRatio(cropper.Square)
//
//		out, err := os.Create("cropped_images.zip")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer out.Close()
//
//		if _, err := ws.ExportAll(context.Background(), out); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of four components:
//
// 1. Registry (pkg/registry): the ordered images and their processed results
// 2. Preview (pkg/preview): one entry per image with select and remove controls
// 3. Session (pkg/session): binds one image at a time to a live crop box (pkg/cropper)
// 4. Export (pkg/export): JPEG encoding of the crop box and zip bundling
//
// Aspect ratio and quality are read at the moment of each crop, so changing
// them never alters results that were already committed.
package imagecropper

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/menta2k/image-cropper/pkg/cropper"
	"github.com/menta2k/image-cropper/pkg/export"
	"github.com/menta2k/image-cropper/pkg/preview"
	"github.com/menta2k/image-cropper/pkg/processing"
	"github.com/menta2k/image-cropper/pkg/registry"
	"github.com/menta2k/image-cropper/pkg/session"
)

// Version of the image cropper library
const Version = "1.0.0"

// Options configure a Workspace.
type Options struct {
	Cropper       cropper.Config
	Quality       float64
	Export        export.Options
	Thumbnails    bool
	ThumbnailSize int
	Logger        *slog.Logger
}

// DefaultOptions returns a free-ratio, 92% quality workspace with thumbnails.
func DefaultOptions() Options {
	return Options{
		Cropper:       cropper.DefaultConfig(),
		Quality:       0.92,
		Export:        export.DefaultOptions(),
		Thumbnails:    true,
		ThumbnailSize: 96,
	}
}

// settings holds the live aspect ratio and quality. It has its own lock so
// the session can read the ratio while holding its own.
type settings struct {
	mu      sync.RWMutex
	ratio   cropper.AspectRatio
	quality float64
}

func (s *settings) AspectRatio() cropper.AspectRatio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratio
}

func (s *settings) Quality() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quality
}

// Workspace is the crop editor: registry, preview strip, crop session and
// export pipeline wired together.
type Workspace struct {
	mu        sync.Mutex
	current   int
	displayed *registry.ProcessedResult

	settings  *settings
	registry  *registry.Registry
	session   *session.Session
	strip     *preview.Strip
	pipeline  *export.Pipeline
	processor *processing.Processor
	logger    *slog.Logger
}

// New creates an empty workspace.
func New(opts Options) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ws := &Workspace{
		current:   -1,
		settings:  &settings{ratio: opts.Cropper.AspectRatio, quality: clampQuality(opts.Quality)},
		registry:  registry.New(),
		processor: processing.NewProcessor(),
		logger:    logger.With("component", "workspace"),
	}

	ws.session = session.New(ws.decode, opts.Cropper, ws.settings.AspectRatio, logger)

	var thumb preview.ThumbnailFunc
	if opts.Thumbnails {
		size := opts.ThumbnailSize
		thumb = func(src *registry.SourceImage) image.Image {
			return src.Handle().Thumbnail(func() (image.Image, error) {
				img, err := ws.decode(src)
				if err != nil {
					return nil, err
				}
				return ws.processor.Thumbnail(img, size), nil
			})
		}
	}
	ws.strip = preview.New(thumb)

	ws.pipeline = export.New(export.Deps{
		Store:      ws.registry,
		Rasterizer: ws.session,
		Selector:   ws,
		Settings:   ws.settings,
		Encoder:    ws.processor,
	}, opts.Export, logger)

	return ws
}

func (ws *Workspace) decode(src *registry.SourceImage) (image.Image, error) {
	return src.Handle().Decoded(func() (image.Image, error) {
		return ws.processor.Decode(src.Data)
	})
}

// Load replaces every loaded image with the image files among files and
// selects the first one. An empty list leaves the workspace untouched.
func (ws *Workspace) Load(files []registry.File) int {
	if len(files) == 0 {
		return ws.registry.Len()
	}

	ws.session.Unbind()
	n := ws.registry.Load(files)
	ws.setCurrent(-1)
	ws.strip.Render(ws.registry, -1)
	ws.logger.Info("images loaded", "files", len(files), "images", n, "skipped", len(files)-n)

	if n > 0 {
		ws.Select(0)
	}
	return n
}

// Select binds image i to the crop session. Out-of-range indices are ignored.
func (ws *Workspace) Select(i int) {
	src, ok := ws.registry.Source(i)
	if !ok {
		return
	}
	ws.setCurrent(i)
	ws.session.Bind(i, src)
	ws.strip.SetActive(i)
}

// Await blocks until the crop box of image i is ready.
func (ws *Workspace) Await(ctx context.Context, i int) error {
	return ws.session.Await(ctx, i)
}

// AwaitCurrent blocks until the crop box of the selected image is ready.
func (ws *Workspace) AwaitCurrent(ctx context.Context) error {
	return ws.session.Await(ctx, ws.CurrentIndex())
}

// Remove deletes image i. Out-of-range indices are ignored. Removing the last
// image closes the session; removing at or before the selection reselects
// min(current, len-1); removing after it keeps the current binding.
func (ws *Workspace) Remove(i int) {
	if !ws.registry.Remove(i) {
		return
	}
	n := ws.registry.Len()
	cur := ws.CurrentIndex()

	if n == 0 {
		ws.session.Unbind()
		ws.setCurrent(-1)
		ws.strip.Render(ws.registry, -1)
		ws.logger.Info("all images removed")
		return
	}

	ws.strip.Render(ws.registry, cur)
	if i <= cur {
		ws.Select(min(cur, n-1))
	}
}

func (ws *Workspace) setCurrent(i int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.current = i
	ws.displayed = nil
}

// CurrentIndex returns the selected index, or -1 when nothing is selected.
func (ws *Workspace) CurrentIndex() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.current
}

// Len returns the number of loaded images.
func (ws *Workspace) Len() int {
	return ws.registry.Len()
}

// Sources returns the loaded images in order.
func (ws *Workspace) Sources() []*registry.SourceImage {
	return ws.registry.Sources()
}

// Result returns the committed result of image i.
func (ws *Workspace) Result(i int) (*registry.ProcessedResult, bool) {
	return ws.registry.Result(i)
}

// LiveHandles returns the number of unreleased display handles.
func (ws *Workspace) LiveHandles() int {
	return ws.registry.LiveHandles()
}

// SessionState returns the crop session state.
func (ws *Workspace) SessionState() session.State {
	return ws.session.State()
}

// SetAspectRatio changes the ratio for future crop boxes and updates the live one in place.
func (ws *Workspace) SetAspectRatio(ratio cropper.AspectRatio) {
	ws.settings.mu.Lock()
	ws.settings.ratio = ratio
	ws.settings.mu.Unlock()

	if err := ws.session.SetAspectRatio(ratio); err != nil {
		ws.logger.Debug("aspect ratio not applied", "ratio", ratio.String(), "error", err)
	}
}

// AspectRatio returns the selected aspect ratio.
func (ws *Workspace) AspectRatio() cropper.AspectRatio {
	return ws.settings.AspectRatio()
}

// SetQuality sets the encoding quality, clamped to [0,1].
func (ws *Workspace) SetQuality(q float64) {
	ws.settings.mu.Lock()
	defer ws.settings.mu.Unlock()
	ws.settings.quality = clampQuality(q)
}

// Quality returns the encoding quality in [0,1].
func (ws *Workspace) Quality() float64 {
	return ws.settings.Quality()
}

// QualityPercent returns the quality as a whole percentage.
func (ws *Workspace) QualityPercent() int {
	return int(ws.Quality()*100 + 0.5)
}

// Reset restores the default crop rectangle of the selected image.
func (ws *Workspace) Reset() {
	if err := ws.session.Reset(); err != nil {
		ws.logger.Debug("reset ignored", "error", err)
	}
}

// Move pans the crop box of the selected image.
func (ws *Workspace) Move(dx, dy float64) error {
	return ws.session.Move(dx, dy)
}

// Resize grows or shrinks the crop box of the selected image.
func (ws *Workspace) Resize(dw, dh float64) error {
	return ws.session.Resize(dw, dh)
}

// SetRect replaces the crop rectangle of the selected image.
func (ws *Workspace) SetRect(r cropper.Rect) error {
	return ws.session.SetRect(r)
}

// Rect returns the crop rectangle of the selected image.
func (ws *Workspace) Rect() (cropper.Rect, bool) {
	r, err := ws.session.Rect(ws.CurrentIndex())
	return r, err == nil
}

// Crop commits the crop box of the selected image. It reports false, doing
// nothing, when no image is selected or its crop box is not ready.
func (ws *Workspace) Crop() (*registry.ProcessedResult, bool) {
	cur := ws.CurrentIndex()
	if cur < 0 {
		return nil, false
	}
	res, err := ws.pipeline.Commit(cur)
	if err != nil {
		ws.logger.Debug("crop ignored", "index", cur, "error", err)
		return nil, false
	}

	ws.mu.Lock()
	if ws.current == cur {
		ws.displayed = res
	}
	ws.mu.Unlock()
	ws.strip.Render(ws.registry, cur)
	return res, true
}

// Export behaves exactly like Crop.
func (ws *Workspace) Export() (*registry.ProcessedResult, bool) {
	return ws.Crop()
}

// Displayed returns the result currently on show, cleared whenever another
// image is selected.
func (ws *Workspace) Displayed() *registry.ProcessedResult {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.displayed
}

// ExportAll commits every unprocessed image and writes the zip archive to w.
// It returns export.ErrNoImages when nothing is loaded.
func (ws *Workspace) ExportAll(ctx context.Context, w io.Writer) (*export.Report, error) {
	report, err := ws.pipeline.CommitAll(ctx, w)
	ws.strip.Render(ws.registry, ws.CurrentIndex())
	return report, err
}

// ArchiveName returns the file name the archive should be saved under.
func (ws *Workspace) ArchiveName() string {
	return ws.pipeline.Options().ArchiveName
}

// Strip returns the preview entries.
func (ws *Workspace) Strip() []preview.Entry {
	return ws.strip.Entries()
}

// StripView renders the preview strip as text.
func (ws *Workspace) StripView(width int) string {
	return ws.strip.View(width)
}

// Dispatch routes a preview strip event.
func (ws *Workspace) Dispatch(ev preview.Event) {
	preview.Dispatch(ws, ev)
}

// Overlay draws the crop box of the selected image over the image.
func (ws *Workspace) Overlay() (image.Image, bool) {
	cur := ws.CurrentIndex()
	src, ok := ws.registry.Source(cur)
	if !ok {
		return nil, false
	}
	r, err := ws.session.Rect(cur)
	if err != nil {
		return nil, false
	}
	img, err := ws.decode(src)
	if err != nil {
		return nil, false
	}
	crop := image.Rect(int(r.X+0.5), int(r.Y+0.5), int(r.X+r.Width+0.5), int(r.Y+r.Height+0.5))
	return ws.processor.CreateCropOverlay(img, crop), true
}

// Close unbinds the session and releases every display handle.
func (ws *Workspace) Close() {
	ws.session.Unbind()
	ws.registry.Clear()
	ws.setCurrent(-1)
	ws.strip.Render(ws.registry, -1)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func clampQuality(q float64) float64 {
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

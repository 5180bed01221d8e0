// Package export turns the live crop box into encoded JPEG results and bundles
// results into a single zip archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/menta2k/image-cropper/pkg/registry"
)

var (
	// ErrNoImages is the one user-facing condition: a batch export with nothing loaded.
	ErrNoImages        = errors.New("select at least one image to export")
	ErrIndexOutOfRange = errors.New("image index out of range")
)

// Store is the registry side of the pipeline.
type Store interface {
	Len() int
	Source(i int) (*registry.SourceImage, bool)
	SetResult(i int, res *registry.ProcessedResult) bool
	Unprocessed() []int
	Results() []*registry.ProcessedResult
}

// Rasterizer reads the pixels under the crop box bound to image i.
type Rasterizer interface {
	Rasterize(i int) (image.Image, error)
}

// Selector binds an image to the crop session and waits for it to be ready.
type Selector interface {
	Select(i int)
	Await(ctx context.Context, i int) error
}

// Settings exposes the live encoding quality in [0,1].
type Settings interface {
	Quality() float64
}

// Encoder encodes rasterized crops.
type Encoder interface {
	EncodeJPEG(img image.Image, quality float64) ([]byte, error)
	Fit(img image.Image, maxDim int) image.Image
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Store      Store
	Rasterizer Rasterizer
	Selector   Selector
	Settings   Settings
	Encoder    Encoder
}

// Options configure archive naming and batch behaviour.
type Options struct {
	ArchiveName   string
	FolderName    string
	MaxDimension  int
	SettleTimeout time.Duration
}

// DefaultOptions returns the archive and settle defaults.
func DefaultOptions() Options {
	return Options{
		ArchiveName:   "cropped_images.zip",
		FolderName:    "cropped_images",
		SettleTimeout: 5 * time.Second,
	}
}

// Skipped records an image left unprocessed by a batch export.
type Skipped struct {
	Index int
	Name  string
	Err   error
}

// Report describes a finished batch export.
type Report struct {
	Archive   string
	Entries   []string
	Skipped   []Skipped
	Bytes     int64
	Processed int
}

// Pipeline commits crops and builds archives.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates a pipeline. Zero option fields fall back to DefaultOptions.
func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.ArchiveName == "" {
		opts.ArchiveName = def.ArchiveName
	}
	if opts.FolderName == "" {
		opts.FolderName = def.FolderName
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = def.SettleTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger.With("component", "export")}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Commit rasterizes the crop box bound to image i, encodes it at the live
// quality and stores it as the result of i, replacing any earlier result.
func (p *Pipeline) Commit(i int) (*registry.ProcessedResult, error) {
	src, ok := p.deps.Store.Source(i)
	if !ok {
		return nil, ErrIndexOutOfRange
	}

	img, err := p.deps.Rasterizer.Rasterize(i)
	if err != nil {
		return nil, fmt.Errorf("rasterize %s: %w", src.Name, err)
	}
	img = p.deps.Encoder.Fit(img, p.opts.MaxDimension)

	quality := p.deps.Settings.Quality()
	data, err := p.deps.Encoder.EncodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", src.Name, err)
	}

	res := &registry.ProcessedResult{
		Data:     data,
		Filename: registry.OutputFilename(src.Name),
		Quality:  quality,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}
	if !p.deps.Store.SetResult(i, res) {
		return nil, ErrIndexOutOfRange
	}
	p.logger.Debug("crop committed", "index", i, "file", res.Filename, "quality", quality, "bytes", len(data))
	return res, nil
}

// CommitAll commits every image that has no result yet, in ascending order,
// then writes all results into one zip archive on w. An image that fails is
// logged and left out; it never stops the batch.
func (p *Pipeline) CommitAll(ctx context.Context, w io.Writer) (*Report, error) {
	if p.deps.Store.Len() == 0 {
		return nil, ErrNoImages
	}

	report := &Report{Archive: p.opts.ArchiveName}
	for _, i := range p.deps.Store.Unprocessed() {
		src, _ := p.deps.Store.Source(i)
		p.deps.Selector.Select(i)

		waitCtx, cancel := context.WithTimeout(ctx, p.opts.SettleTimeout)
		err := p.deps.Selector.Await(waitCtx, i)
		cancel()
		if err == nil {
			_, err = p.Commit(i)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("image skipped", "index", i, "name", src.Name, "error", err)
			report.Skipped = append(report.Skipped, Skipped{Index: i, Name: src.Name, Err: err})
			continue
		}
		report.Processed++
	}

	entries, n, err := WriteArchive(w, p.opts.FolderName, p.deps.Store.Results())
	if err != nil {
		return nil, err
	}
	report.Entries = entries
	report.Bytes = n
	p.logger.Info("archive written",
		"archive", report.Archive,
		"entries", len(entries),
		"skipped", len(report.Skipped),
		"bytes", n)
	return report, nil
}

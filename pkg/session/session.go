// Package session binds one registered image at a time to a live crop box.
//
// A session is either Unbound or Bound(i). Binding decodes the image in the
// background; the crop box only exists once that load has finished, and the
// channel returned by Bind is closed at that point. Binding again, or
// unbinding, releases the previous crop box first.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/menta2k/image-cropper/pkg/cropper"
	"github.com/menta2k/image-cropper/pkg/registry"
)

var (
	ErrUnbound       = errors.New("no image bound")
	ErrNotReady      = errors.New("crop box not ready")
	ErrIndexMismatch = errors.New("session bound to a different image")
)

// State is the binding state of a session.
type State int

const (
	Unbound State = iota
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// Decoder turns a registered image into its displayable form.
type Decoder func(src *registry.SourceImage) (image.Image, error)

// Stats counts crop box lifecycle events.
type Stats struct {
	Binds    int
	Releases int
}

// Session owns the live crop box.
type Session struct {
	mu      sync.Mutex
	decode  Decoder
	config  cropper.Config
	ratio   func() cropper.AspectRatio
	logger  *slog.Logger
	state   State
	index   int
	gen     uint64
	ready   chan struct{}
	box     *cropper.CropBox
	loadErr error
	stats   Stats
}

// New creates an unbound session. ratio is read when each crop box is built,
// so the box always starts with the ratio selected at that moment.
func New(decode Decoder, config cropper.Config, ratio func() cropper.AspectRatio, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ratio == nil {
		ratio = func() cropper.AspectRatio { return config.AspectRatio }
	}
	return &Session{
		decode: decode,
		config: config,
		ratio:  ratio,
		logger: logger.With("component", "session"),
		index:  -1,
	}
}

// Bind releases any current crop box and starts loading src as image i.
// The returned channel is closed when the load has finished, successfully or not.
func (s *Session) Bind(i int, src *registry.SourceImage) <-chan struct{} {
	s.mu.Lock()
	s.releaseLocked()
	s.gen++
	gen := s.gen
	ready := make(chan struct{})
	s.state = Bound
	s.index = i
	s.ready = ready
	s.loadErr = nil
	s.stats.Binds++
	s.mu.Unlock()

	go s.load(gen, i, src, ready)
	return ready
}

func (s *Session) load(gen uint64, i int, src *registry.SourceImage, ready chan struct{}) {
	defer close(ready)

	img, err := s.decode(src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("discarding stale image load", "index", i)
		return
	}
	if err != nil {
		s.loadErr = err
		s.logger.Warn("image load failed", "index", i, "name", src.Name, "error", err)
		return
	}

	cfg := s.config
	cfg.AspectRatio = s.ratio()
	box, err := cropper.New(img, cfg)
	if err != nil {
		s.loadErr = err
		s.logger.Warn("crop box construction failed", "index", i, "name", src.Name, "error", err)
		return
	}
	s.box = box
	s.logger.Debug("crop box bound", "index", i, "name", src.Name, "ratio", cfg.AspectRatio.String())
}

// Unbind releases the crop box and returns to the Unbound state.
func (s *Session) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.gen++
	s.state = Unbound
	s.index = -1
	s.ready = nil
	s.loadErr = nil
}

func (s *Session) releaseLocked() {
	if s.box != nil && s.box.Release() {
		s.stats.Releases++
	}
	s.box = nil
}

// State returns the binding state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the bound index, or -1 when unbound.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Ready reports whether the crop box of the bound image exists.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.box != nil
}

// Stats returns the lifecycle counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Await blocks until the load of image i has finished or ctx is done.
func (s *Session) Await(ctx context.Context, i int) error {
	s.mu.Lock()
	if s.state != Bound {
		s.mu.Unlock()
		return ErrUnbound
	}
	if s.index != i {
		s.mu.Unlock()
		return ErrIndexMismatch
	}
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return fmt.Errorf("waiting for image %d: %w", i, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Bound || s.index != i {
		return ErrIndexMismatch
	}
	if s.loadErr != nil {
		return fmt.Errorf("loading image %d: %w", i, s.loadErr)
	}
	if s.box == nil {
		return ErrNotReady
	}
	return nil
}

// boxFor returns the crop box of image i. The caller must hold s.mu.
func (s *Session) boxFor(i int) (*cropper.CropBox, error) {
	if s.state != Bound {
		return nil, ErrUnbound
	}
	if s.index != i {
		return nil, ErrIndexMismatch
	}
	if s.box == nil {
		return nil, ErrNotReady
	}
	return s.box, nil
}

// Rect returns the crop rectangle of image i.
func (s *Session) Rect(i int) (cropper.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, err := s.boxFor(i)
	if err != nil {
		return cropper.Rect{}, err
	}
	return box.Data()
}

// Rasterize returns the pixels under the crop box of image i.
func (s *Session) Rasterize(i int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, err := s.boxFor(i)
	if err != nil {
		return nil, err
	}
	return box.Rasterize()
}

// SetAspectRatio updates the live crop box in place. Without a box it does nothing.
func (s *Session) SetAspectRatio(ratio cropper.AspectRatio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.box == nil {
		return nil
	}
	return s.box.SetAspectRatio(ratio)
}

// Reset restores the default rectangle of the live crop box.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.box == nil {
		return nil
	}
	return s.box.Reset()
}

// Move pans the live crop box.
func (s *Session) Move(dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, err := s.boxFor(s.index)
	if err != nil {
		return err
	}
	return box.Move(dx, dy)
}

// Resize grows or shrinks the live crop box.
func (s *Session) Resize(dw, dh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, err := s.boxFor(s.index)
	if err != nil {
		return err
	}
	return box.Resize(dw, dh)
}

// SetRect replaces the crop rectangle of the live crop box.
func (s *Session) SetRect(r cropper.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, err := s.boxFor(s.index)
	if err != nil {
		return err
	}
	return box.SetData(r)
}

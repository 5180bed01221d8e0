// Package registry holds the ordered list of loaded source images and, per
// image, its optional processed result. The two are stored as one slice of
// pairs so that removals can never break the index pairing.
package registry

import (
	"errors"
	"image"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/menta2k/image-cropper/pkg/processing"
)

// ErrReleased is returned when a released display handle is used.
var ErrReleased = errors.New("display handle released")

// File is one user-supplied input with its declared media type.
type File struct {
	Name string
	Type string
	Data []byte
}

// IsImage reports whether the declared media type is an image type.
func (f File) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(f.Type)), "image/")
}

// ProcessedResult is the committed crop of one source image.
type ProcessedResult struct {
	Data     []byte
	Filename string
	Quality  float64
	Width    int
	Height   int
}

// DataURI returns the encoded image as a data URI, suitable as a download href.
func (r *ProcessedResult) DataURI() string {
	return processing.DataURI(processing.JPEGMime, r.Data)
}

// OutputFilename replaces the last extension of name with ".jpg", or appends
// it when the name has none.
func OutputFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
}

// SourceImage is one registered input image.
type SourceImage struct {
	Index int
	Name  string
	Type  string
	Data  []byte

	handle *Handle
}

// Handle returns the display handle of the image.
func (s *SourceImage) Handle() *Handle {
	return s.handle
}

// Handle is the display resource of a source image: its decoded form and a
// cached thumbnail. It is released exactly once, on removal or clear.
type Handle struct {
	mu       sync.Mutex
	live     *atomic.Int64
	decoded  image.Image
	thumb    image.Image
	released bool
}

// Thumbnail returns the cached thumbnail, building it with build on first use.
// It returns nil once the handle is released or when build fails. build runs
// without the handle lock held, so it may call Decoded.
func (h *Handle) Thumbnail(build func() (image.Image, error)) image.Image {
	h.mu.Lock()
	if h.released || h.thumb != nil {
		defer h.mu.Unlock()
		return h.thumb
	}
	h.mu.Unlock()

	img, err := build()
	if err != nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	if h.thumb == nil {
		h.thumb = img
	}
	return h.thumb
}

// Decoded returns the decoded image, decoding with decode on first use.
// Release does not wait for a decode in progress; its result is then dropped
// and ErrReleased returned.
func (h *Handle) Decoded(decode func() (image.Image, error)) (image.Image, error) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil, ErrReleased
	}
	if h.decoded != nil {
		defer h.mu.Unlock()
		return h.decoded, nil
	}
	h.mu.Unlock()

	img, err := decode()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	if h.decoded == nil {
		h.decoded = img
	}
	return h.decoded, nil
}

// Release frees the cached images. It reports false if already released.
func (h *Handle) Release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	h.decoded = nil
	h.thumb = nil
	h.live.Add(-1)
	return true
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

type entry struct {
	source *SourceImage
	result *ProcessedResult
}

// Registry is the ordered collection of source images and their results.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	live    atomic.Int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Load replaces the registry with the image files among files, in order.
// Every handle of the previous contents is released first.
func (r *Registry) Load(files []File) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearLocked()
	for _, f := range files {
		if !f.IsImage() {
			continue
		}
		r.live.Add(1)
		r.entries = append(r.entries, entry{source: &SourceImage{
			Index:  len(r.entries),
			Name:   f.Name,
			Type:   f.Type,
			Data:   f.Data,
			handle: &Handle{live: &r.live},
		}})
	}
	return len(r.entries)
}

// Clear releases every handle and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Registry) clearLocked() {
	for _, e := range r.entries {
		e.source.handle.Release()
	}
	r.entries = nil
}

// Remove deletes the image and its result at i and shifts later entries down.
// It reports false, changing nothing, when i is out of range.
func (r *Registry) Remove(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.entries) {
		return false
	}
	r.entries[i].source.handle.Release()
	r.entries = slices.Delete(r.entries, i, i+1)
	for j := i; j < len(r.entries); j++ {
		r.entries[j].source.Index = j
	}
	return true
}

// Len returns the number of registered images.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Source returns the image at i.
func (r *Registry) Source(i int) (*SourceImage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.entries) {
		return nil, false
	}
	return r.entries[i].source, true
}

// Sources returns the registered images in order.
func (r *Registry) Sources() []*SourceImage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SourceImage, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.source
	}
	return out
}

// Result returns the processed result at i, if one was committed.
func (r *Registry) Result(i int) (*ProcessedResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.entries) || r.entries[i].result == nil {
		return nil, false
	}
	return r.entries[i].result, true
}

// SetResult stores res as the result of image i, replacing any earlier one.
func (r *Registry) SetResult(i int, res *ProcessedResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.entries) || res == nil {
		return false
	}
	r.entries[i].result = res
	return true
}

// Unprocessed returns, in ascending order, the indices without a result.
func (r *Registry) Unprocessed() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int
	for i, e := range r.entries {
		if e.result == nil {
			out = append(out, i)
		}
	}
	return out
}

// Results returns every committed result in registry order.
func (r *Registry) Results() []*ProcessedResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ProcessedResult
	for _, e := range r.entries {
		if e.result != nil {
			out = append(out, e.result)
		}
	}
	return out
}

// LiveHandles returns the number of display handles not yet released.
func (r *Registry) LiveHandles() int {
	return int(r.live.Load())
}

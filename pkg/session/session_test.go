package session

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-cropper/pkg/cropper"
	"github.com/menta2k/image-cropper/pkg/registry"
)

func sources(t *testing.T, names ...string) []*registry.SourceImage {
	t.Helper()
	r := registry.New()
	var files []registry.File
	for _, n := range names {
		files = append(files, registry.File{Name: n, Type: "image/png"})
	}
	r.Load(files)
	return r.Sources()
}

func solidDecoder(w, h int) Decoder {
	return func(*registry.SourceImage) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, w, h)), nil
	}
}

func await(t *testing.T, s *Session, i int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Await(ctx, i))
}

func TestNewSessionIsUnbound(t *testing.T) {
	s := New(solidDecoder(10, 10), cropper.DefaultConfig(), nil, nil)

	require.Equal(t, Unbound, s.State())
	require.Equal(t, -1, s.Index())
	require.False(t, s.Ready())

	_, err := s.Rasterize(0)
	require.ErrorIs(t, err, ErrUnbound)
	require.ErrorIs(t, s.Await(context.Background(), 0), ErrUnbound)
	require.NoError(t, s.SetAspectRatio(cropper.Square))
	require.NoError(t, s.Reset())
}

func TestBindBuildsBoxWithCurrentRatio(t *testing.T) {
	ratio := cropper.Free
	s := New(solidDecoder(400, 300), cropper.DefaultConfig(), func() cropper.AspectRatio { return ratio }, nil)
	src := sources(t, "a.png")

	ratio = cropper.Square
	<-s.Bind(0, src[0])
	await(t, s, 0)

	require.Equal(t, Bound, s.State())
	require.Equal(t, 0, s.Index())
	rect, err := s.Rect(0)
	require.NoError(t, err)
	require.InDelta(t, rect.Width, rect.Height, 0.01)
	require.InDelta(t, 240.0, rect.Width, 0.01)
}

func TestRebindReleasesPreviousBox(t *testing.T) {
	s := New(solidDecoder(100, 100), cropper.DefaultConfig(), nil, nil)
	src := sources(t, "a.png", "b.png")

	<-s.Bind(0, src[0])
	<-s.Bind(1, src[1])
	await(t, s, 1)
	require.Equal(t, Stats{Binds: 2, Releases: 1}, s.Stats())

	_, err := s.Rect(0)
	require.ErrorIs(t, err, ErrIndexMismatch)

	s.Unbind()
	require.Equal(t, Stats{Binds: 2, Releases: 2}, s.Stats())
	require.Equal(t, Unbound, s.State())

	s.Unbind()
	require.Equal(t, 2, s.Stats().Releases)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	decode := func(src *registry.SourceImage) (image.Image, error) {
		if src.Name == "slow.png" {
			<-gate
			return image.NewRGBA(image.Rect(0, 0, 50, 50)), nil
		}
		return image.NewRGBA(image.Rect(0, 0, 200, 100)), nil
	}
	s := New(decode, cropper.DefaultConfig(), nil, nil)
	src := sources(t, "slow.png", "fast.png")

	slowReady := s.Bind(0, src[0])
	<-s.Bind(1, src[1])
	close(gate)
	<-slowReady

	await(t, s, 1)
	rect, err := s.Rect(1)
	require.NoError(t, err)
	require.InDelta(t, 160.0, rect.Width, 0.01)
	require.Equal(t, 1, s.Index())
}

func TestAwaitReportsLoadFailure(t *testing.T) {
	boom := errors.New("decode failed")
	s := New(func(*registry.SourceImage) (image.Image, error) { return nil, boom }, cropper.DefaultConfig(), nil, nil)
	src := sources(t, "broken.png")

	<-s.Bind(0, src[0])
	err := s.Await(context.Background(), 0)
	require.ErrorIs(t, err, boom)

	_, err = s.Rasterize(0)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestAwaitHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	s := New(func(*registry.SourceImage) (image.Image, error) {
		<-gate
		return nil, errors.New("never")
	}, cropper.DefaultConfig(), nil, nil)
	src := sources(t, "hang.png")

	s.Bind(0, src[0])
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Await(ctx, 0), context.DeadlineExceeded)
	require.False(t, s.Ready())
}

func TestAspectRatioChangeKeepsCenter(t *testing.T) {
	s := New(solidDecoder(400, 300), cropper.DefaultConfig(), nil, nil)
	src := sources(t, "a.png")
	<-s.Bind(0, src[0])
	await(t, s, 0)

	require.NoError(t, s.Move(-30, 20))
	before, _ := s.Rect(0)
	require.NoError(t, s.SetAspectRatio(cropper.Portrait))
	after, _ := s.Rect(0)

	bx, by := before.Center()
	ax, ay := after.Center()
	require.InDelta(t, bx, ax, 0.01)
	require.InDelta(t, by, ay, 0.01)
	require.InDelta(t, 0.75, after.Width/after.Height, 0.01)

	require.NoError(t, s.Reset())
	reset, _ := s.Rect(0)
	require.InDelta(t, 200.0, reset.X+reset.Width/2, 0.01)
	require.False(t, math.IsNaN(reset.Width))
}

func TestRasterizeBoundImage(t *testing.T) {
	s := New(solidDecoder(100, 50), cropper.DefaultConfig(), nil, nil)
	src := sources(t, "a.png")
	<-s.Bind(0, src[0])
	await(t, s, 0)

	require.NoError(t, s.SetRect(cropper.Rect{X: 10, Y: 10, Width: 20, Height: 30}))
	img, err := s.Rasterize(0)
	require.NoError(t, err)
	require.Equal(t, 20, img.Bounds().Dx())
	require.Equal(t, 30, img.Bounds().Dy())
}

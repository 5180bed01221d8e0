package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-cropper/pkg/processing"
	"github.com/menta2k/image-cropper/pkg/registry"
)

type quality float64

func (q quality) Quality() float64 { return float64(q) }

// fakeSession stands in for the crop session: Select binds, Await fails for
// indices listed in broken.
type fakeSession struct {
	bound    int
	selected []int
	broken   map[int]error
}

func (f *fakeSession) Select(i int) {
	f.bound = i
	f.selected = append(f.selected, i)
}

func (f *fakeSession) Await(_ context.Context, i int) error {
	if err, ok := f.broken[i]; ok {
		return err
	}
	return nil
}

func (f *fakeSession) Rasterize(i int) (image.Image, error) {
	if f.bound != i {
		return nil, errors.New("not bound")
	}
	img := image.NewRGBA(image.Rect(0, 0, 40+i, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40+i; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 5), uint8(y * 8), 90, 255})
		}
	}
	return img, nil
}

func setup(t *testing.T, q float64, names ...string) (*Pipeline, *registry.Registry, *fakeSession) {
	t.Helper()
	reg := registry.New()
	var files []registry.File
	for _, n := range names {
		files = append(files, registry.File{Name: n, Type: "image/png"})
	}
	reg.Load(files)

	sess := &fakeSession{bound: -1, broken: map[int]error{}}
	p := New(Deps{
		Store:      reg,
		Rasterizer: sess,
		Selector:   sess,
		Settings:   quality(q),
		Encoder:    processing.NewProcessor(),
	}, Options{}, nil)
	return p, reg, sess
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = b
	}
	return out
}

func TestDefaultOptionsApplied(t *testing.T) {
	p, _, _ := setup(t, 0.9)
	opts := p.Options()
	require.Equal(t, "cropped_images.zip", opts.ArchiveName)
	require.Equal(t, "cropped_images", opts.FolderName)
	require.Positive(t, opts.SettleTimeout)
}

func TestCommitStoresResult(t *testing.T) {
	p, reg, sess := setup(t, 0.8, "holiday.png")
	sess.Select(0)

	res, err := p.Commit(0)
	require.NoError(t, err)
	require.Equal(t, "holiday.jpg", res.Filename)
	require.Equal(t, 0.8, res.Quality)
	require.Equal(t, 40, res.Width)
	require.True(t, bytes.HasPrefix(res.Data, []byte{0xFF, 0xD8}))

	stored, ok := reg.Result(0)
	require.True(t, ok)
	require.Same(t, res, stored)
}

func TestCommitTwiceOverwrites(t *testing.T) {
	p, reg, sess := setup(t, 0.1, "a.png")
	sess.Select(0)
	first, err := p.Commit(0)
	require.NoError(t, err)

	p.deps.Settings = quality(1.0)
	second, err := p.Commit(0)
	require.NoError(t, err)

	require.Len(t, reg.Results(), 1)
	stored, _ := reg.Result(0)
	require.Same(t, second, stored)
	require.NotEqual(t, first.Quality, stored.Quality)
}

func TestCommitFailures(t *testing.T) {
	p, reg, _ := setup(t, 0.9, "a.png")

	_, err := p.Commit(5)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = p.Commit(0)
	require.Error(t, err)
	require.Empty(t, reg.Results())
}

func TestCommitAllEmptyRegistry(t *testing.T) {
	p, _, sess := setup(t, 0.9)
	var buf bytes.Buffer

	report, err := p.CommitAll(context.Background(), &buf)
	require.ErrorIs(t, err, ErrNoImages)
	require.Nil(t, report)
	require.Zero(t, buf.Len())
	require.Empty(t, sess.selected)
}

func TestCommitAllProcessesMissingOnly(t *testing.T) {
	p, reg, sess := setup(t, 0.9, "one.png", "two.jpeg", "three.webp")
	sess.Select(1)
	_, err := p.Commit(1)
	require.NoError(t, err)
	sess.selected = nil

	var buf bytes.Buffer
	report, err := p.CommitAll(context.Background(), &buf)
	require.NoError(t, err)

	require.Equal(t, []int{0, 2}, sess.selected)
	require.Len(t, reg.Results(), 3)
	require.Equal(t, 2, report.Processed)
	require.Empty(t, report.Skipped)
	require.Equal(t, int64(buf.Len()), report.Bytes)
	require.Equal(t, []string{
		"cropped_images/one.jpg",
		"cropped_images/two.jpg",
		"cropped_images/three.jpg",
	}, report.Entries)

	files := readArchive(t, buf.Bytes())
	require.Len(t, files, 3)
	for i, name := range report.Entries {
		res, _ := reg.Result(i)
		require.Equal(t, res.Data, files[name])
	}
}

func TestCommitAllSkipsFailuresAndContinues(t *testing.T) {
	p, reg, sess := setup(t, 0.9, "a.png", "b.png", "c.png")
	sess.broken[1] = errors.New("never loaded")

	var buf bytes.Buffer
	report, err := p.CommitAll(context.Background(), &buf)
	require.NoError(t, err)

	require.Equal(t, []int{0, 1, 2}, sess.selected)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, 1, report.Skipped[0].Index)
	require.Equal(t, "b.png", report.Skipped[0].Name)
	_, ok := reg.Result(1)
	require.False(t, ok)

	files := readArchive(t, buf.Bytes())
	require.Len(t, files, 2)
	require.Contains(t, files, "cropped_images/a.jpg")
	require.Contains(t, files, "cropped_images/c.jpg")
}

func TestCommitAllStopsOnCancelledContext(t *testing.T) {
	p, _, sess := setup(t, 0.9, "a.png", "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess.broken[0] = context.Canceled

	_, err := p.CommitAll(ctx, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteArchiveDuplicateNamesLastWins(t *testing.T) {
	var buf bytes.Buffer
	entries, n, err := WriteArchive(&buf, "out", []*registry.ProcessedResult{
		{Filename: "photo.jpg", Data: []byte("first")},
		{Filename: "other.jpg", Data: []byte("other")},
		{Filename: "photo.jpg", Data: []byte("second")},
		{Filename: "empty.jpg"},
		nil,
	})
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, []string{"out/photo.jpg", "out/other.jpg"}, entries)

	files := readArchive(t, buf.Bytes())
	require.Equal(t, []byte("second"), files["out/photo.jpg"])
}

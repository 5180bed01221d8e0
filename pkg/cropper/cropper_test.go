package cropper

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a pattern with some high-contrast areas
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func newBox(t *testing.T, w, h int, ratio AspectRatio) *CropBox {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AspectRatio = ratio
	box, err := New(createTestImage(w, h), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return box
}

func TestCommonAspectRatios(t *testing.T) {
	ratios := CommonAspectRatios()

	if len(ratios) == 0 {
		t.Fatal("Expected at least one common aspect ratio")
	}
	if !ratios[0].IsFree() {
		t.Error("Expected free ratio to be listed first")
	}

	foundSquare := false
	for _, ratio := range ratios {
		if ratio.Name == "square" && ratio.Width == 1 && ratio.Height == 1 {
			foundSquare = true
			break
		}
	}
	if !foundSquare {
		t.Error("Expected to find square aspect ratio")
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		input    string
		expected AspectRatio
		wantErr  bool
	}{
		{"square", Square, false},
		{"16:9", Widescreen, false},
		{" Story ", Story, false},
		{"", Free, false},
		{"free", Free, false},
		{"2:7", AspectRatio{}, true},
	}

	for _, test := range tests {
		got, err := ParseAspectRatio(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("ParseAspectRatio(%q) expected error", test.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAspectRatio(%q) failed: %v", test.input, err)
			continue
		}
		if got != test.expected {
			t.Errorf("ParseAspectRatio(%q) = %v, expected %v", test.input, got, test.expected)
		}
	}
}

func TestNewRejectsEmptyImage(t *testing.T) {
	if _, err := New(image.NewRGBA(image.Rect(0, 0, 0, 10)), DefaultConfig()); err != ErrInvalidImage {
		t.Errorf("Expected ErrInvalidImage, got %v", err)
	}
	if _, err := New(nil, DefaultConfig()); err != ErrInvalidImage {
		t.Errorf("Expected ErrInvalidImage for nil image, got %v", err)
	}
}

func TestDefaultRectFree(t *testing.T) {
	box := newBox(t, 400, 300, Free)

	r, err := box.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if !approx(r.Width, 320) || !approx(r.Height, 240) {
		t.Errorf("Expected 320x240, got %.2fx%.2f", r.Width, r.Height)
	}
	cx, cy := r.Center()
	if !approx(cx, 200) || !approx(cy, 150) {
		t.Errorf("Expected centre 200,150, got %.2f,%.2f", cx, cy)
	}
}

func TestDefaultRectWithRatio(t *testing.T) {
	testRatios := []AspectRatio{Square, Portrait, Landscape, Widescreen, Story}

	for _, ratio := range testRatios {
		box := newBox(t, 400, 300, ratio)
		r, _ := box.Data()

		if !approx(r.Width/r.Height, ratio.Value()) {
			t.Errorf("%s: expected ratio %f, got %f", ratio.Name, ratio.Value(), r.Width/r.Height)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > 400.01 || r.Y+r.Height > 300.01 {
			t.Errorf("%s: rectangle %+v escapes the image", ratio.Name, r)
		}
	}
}

func TestSetAspectRatioKeepsCenter(t *testing.T) {
	box := newBox(t, 400, 300, Free)
	if err := box.Move(-20, 10); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	before, _ := box.Data()
	bcx, bcy := before.Center()

	if err := box.SetAspectRatio(Square); err != nil {
		t.Fatalf("SetAspectRatio failed: %v", err)
	}
	after, _ := box.Data()
	acx, acy := after.Center()

	if !approx(bcx, acx) || !approx(bcy, acy) {
		t.Errorf("Centre moved from %.2f,%.2f to %.2f,%.2f", bcx, bcy, acx, acy)
	}
	if !approx(after.Width, after.Height) {
		t.Errorf("Expected square box, got %.2fx%.2f", after.Width, after.Height)
	}
	if box.Config().AspectRatio != Square {
		t.Errorf("Expected config ratio to follow, got %v", box.Config().AspectRatio)
	}
}

func TestSetAspectRatioShrinksAtEdges(t *testing.T) {
	box := newBox(t, 400, 300, Free)
	// push the box into the top-left corner
	if err := box.SetData(Rect{X: 0, Y: 0, Width: 100, Height: 100}); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	if err := box.SetAspectRatio(Widescreen); err != nil {
		t.Fatalf("SetAspectRatio failed: %v", err)
	}
	r, _ := box.Data()
	cx, cy := r.Center()
	if !approx(cx, 50) || !approx(cy, 50) {
		t.Errorf("Expected centre 50,50, got %.2f,%.2f", cx, cy)
	}
	if r.X < 0 || r.Y < 0 {
		t.Errorf("Rectangle %+v escapes the image", r)
	}
}

func TestSetAspectRatioFreeKeepsRect(t *testing.T) {
	box := newBox(t, 400, 300, Square)
	before, _ := box.Data()

	if err := box.SetAspectRatio(Free); err != nil {
		t.Fatalf("SetAspectRatio failed: %v", err)
	}
	after, _ := box.Data()
	if before != after {
		t.Errorf("Expected rectangle unchanged, got %+v -> %+v", before, after)
	}
}

func TestMoveClampsToImage(t *testing.T) {
	box := newBox(t, 400, 300, Free)
	if err := box.Move(10000, -10000); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	r, _ := box.Data()
	if !approx(r.X+r.Width, 400) || !approx(r.Y, 0) {
		t.Errorf("Expected box pinned to top-right, got %+v", r)
	}
}

func TestMoveAndResizeRespectConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Movable = false
	cfg.Resizable = false
	box, err := New(createTestImage(100, 100), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := box.Move(1, 1); err != ErrNotMovable {
		t.Errorf("Expected ErrNotMovable, got %v", err)
	}
	if err := box.Resize(1, 1); err != ErrNotResizable {
		t.Errorf("Expected ErrNotResizable, got %v", err)
	}
}

func TestResizeKeepsRatio(t *testing.T) {
	box := newBox(t, 400, 300, Landscape)
	if err := box.Resize(-40, 0); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	r, _ := box.Data()
	if !approx(r.Width/r.Height, 4.0/3.0) {
		t.Errorf("Expected 4:3 after resize, got %f", r.Width/r.Height)
	}

	if err := box.Resize(0, -1000); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	r, _ = box.Data()
	if r.Width < minSize || r.Height < minSize {
		t.Errorf("Expected minimum size to hold, got %+v", r)
	}
}

func TestReset(t *testing.T) {
	box := newBox(t, 400, 300, Square)
	initial, _ := box.Data()

	_ = box.Move(50, 50)
	_ = box.Resize(-100, 0)
	if err := box.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	r, _ := box.Data()
	if r != initial {
		t.Errorf("Expected %+v after reset, got %+v", initial, r)
	}
}

func TestRasterize(t *testing.T) {
	original := createTestImage(200, 200)
	box, err := New(original, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := box.SetData(Rect{X: 50, Y: 50, Width: 100, Height: 100}); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	cropped, err := box.Rasterize()
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}

	bounds := cropped.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Errorf("Expected 100x100, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	r1, g1, b1, _ := cropped.At(bounds.Min.X+30, bounds.Min.Y+30).RGBA()
	r2, g2, b2, _ := original.At(80, 80).RGBA()
	if r1 != r2 || g1 != g2 || b1 != b2 {
		t.Error("Cropped image pixel should match original image pixel")
	}
}

func TestRasterizeOffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 110, 120))
	img.Set(10, 20, color.RGBA{255, 0, 0, 255})

	box, err := New(img, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = box.SetData(Rect{X: 0, Y: 0, Width: 10, Height: 10})

	cropped, err := box.Rasterize()
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}
	r, _, _, _ := cropped.At(cropped.Bounds().Min.X, cropped.Bounds().Min.Y).RGBA()
	if r>>8 != 255 {
		t.Errorf("Expected red corner pixel, got r=%d", r>>8)
	}
}

func TestRelease(t *testing.T) {
	box := newBox(t, 100, 100, Free)

	if !box.Release() {
		t.Error("First Release should report true")
	}
	if box.Release() {
		t.Error("Second Release should report false")
	}
	if !box.Released() {
		t.Error("Expected Released to be true")
	}
	if _, err := box.Data(); err != ErrReleased {
		t.Errorf("Expected ErrReleased from Data, got %v", err)
	}
	if _, err := box.Rasterize(); err != ErrReleased {
		t.Errorf("Expected ErrReleased from Rasterize, got %v", err)
	}
	if err := box.SetAspectRatio(Square); err != ErrReleased {
		t.Errorf("Expected ErrReleased from SetAspectRatio, got %v", err)
	}
}

func BenchmarkRasterize(b *testing.B) {
	box, _ := New(createTestImage(1920, 1080), DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		box.Rasterize()
	}
}

package raster

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
	"quicklabel3d/pkg/config"
	"quicklabel3d/pkg/volume"
)

func grayVolume(t *testing.T, fill float64) *volume.Volume {
	t.Helper()
	data := make([]float64, 4*4*4)
	for i := range data {
		data[i] = fill
	}
	v, err := volume.New(data, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, [3]float64{})
	if err != nil {
		t.Fatalf("failed to create volume: %v", err)
	}
	return v
}

// TestScreenSliceRoundTrip verifies the display transform and its inverse
func TestScreenSliceRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		view View
	}{
		{"identity", NewView(models.Axial, 0)},
		{"zoomed", View{Plane: models.Axial, Index: 0, Zoom: 2.5}},
		{"panned", View{Plane: models.Axial, Index: 0, PanU: 30, PanV: -12, Zoom: 1}},
		{"pan and zoom", View{Plane: models.Axial, Index: 0, PanU: 5, PanV: 7, Zoom: 0.5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sx, sy := c.view.SliceToScreen(10, 20)
			u, v := c.view.ScreenToSlice(sx, sy)
			if math.Abs(u-10) > 1e-9 || math.Abs(v-20) > 1e-9 {
				t.Errorf("round trip drifted: got (%g, %g)", u, v)
			}
		})
	}
}

// TestScreenToSliceZoom verifies zoom divides screen offsets
func TestScreenToSliceZoom(t *testing.T) {
	view := View{Plane: models.Axial, Index: 0, Zoom: 2}
	u, v := view.ScreenToSlice(10, 6)
	if u != 5 || v != 3 {
		t.Errorf("expected (5, 3), got (%g, %g)", u, v)
	}

	// Zero zoom behaves as 1:1 instead of dividing by zero.
	view.Zoom = 0
	u, _ = view.ScreenToSlice(10, 6)
	if u != 10 {
		t.Errorf("expected 10 at zero zoom, got %g", u)
	}
}

// TestScreenToVolume verifies resolution onto the viewed slice
func TestScreenToVolume(t *testing.T) {
	view := View{Plane: models.Sagittal, Index: 3, Zoom: 1}
	p := view.ScreenToVolume(2, 6)
	want := models.Point3{Z: 6, Y: 2, X: 3}
	if p != want {
		t.Errorf("expected %+v, got %+v", want, p)
	}
}

// TestRenderSliceWindow verifies intensity windowing and clamping
func TestRenderSliceWindow(t *testing.T) {
	sl := &volume.Slice{
		Data:   []float64{-100, 0, 50, 100, 200, 1000},
		Height: 2,
		Width:  3,
		Plane:  models.Axial,
	}
	img := RenderSlice(sl, Window{Center: 50, Width: 100})

	// Below the window floors to 0, above saturates at 255.
	if got := img.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("expected 0 for value below window, got %d", got)
	}
	if got := img.GrayAt(2, 1).Y; got != 255 {
		t.Errorf("expected 255 for value above window, got %d", got)
	}

	// The window center lands mid-gray.
	if got := img.GrayAt(2, 0).Y; got < 126 || got > 129 {
		t.Errorf("expected mid-gray at center value, got %d", got)
	}
}

// TestAutoWindow verifies the derived window covers the value range
func TestAutoWindow(t *testing.T) {
	data := make([]float64, 64)
	for i := range data {
		data[i] = float64(i * 10)
	}
	v, err := volume.New(data, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, [3]float64{})
	if err != nil {
		t.Fatalf("failed to create volume: %v", err)
	}

	win := AutoWindow(v)
	if win.Width <= 0 {
		t.Errorf("expected positive width, got %g", win.Width)
	}
	if win.Center < 0 || win.Center > 630 {
		t.Errorf("window center outside data range: %g", win.Center)
	}
}

// TestRenderOverlay verifies label regions, reference regions and claim
// suppression in the overlay
func TestRenderOverlay(t *testing.T) {
	cfg := config.DefaultConfig()
	store, err := annotation.NewStore("p", [3]int{4, 4, 4})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ref := make([]uint16, 64)
	ref[2*16+1*4+1] = 205 // label 1 region at (z=2, y=1, x=1)
	ref[2*16+2*4+2] = 420 // label 2 region at (z=2, y=2, x=2)
	if err := store.SetReference(ref, cfg.ReferenceValues()); err != nil {
		t.Fatalf("failed to set reference: %v", err)
	}
	if err := store.SetVoxelLabel(models.Voxel{Z: 2, Y: 0, X: 3}, 3); err != nil {
		t.Fatalf("failed to set label: %v", err)
	}
	if err := store.ClaimReferenceRegion(2); err != nil {
		t.Fatalf("failed to claim: %v", err)
	}

	img, err := RenderOverlay(store, cfg, models.Axial, 2)
	if err != nil {
		t.Fatalf("failed to render overlay: %v", err)
	}

	// User label 3 is blue in the default table.
	px := img.RGBAAt(3, 0)
	if px.B != 255 || px.A != cfg.Display.MaskOpacity {
		t.Errorf("expected blue label pixel, got %+v", px)
	}

	// Unclaimed reference value 205 renders with label 1's color.
	px = img.RGBAAt(1, 1)
	if px.R != 255 || px.A != cfg.Display.MaskOpacity {
		t.Errorf("expected red reference pixel, got %+v", px)
	}

	// The claim moved value 420 into the user grid, so the pixel renders
	// as user label 2, not as reference.
	px = img.RGBAAt(2, 2)
	if px.G != 255 || px.A != cfg.Display.MaskOpacity {
		t.Errorf("expected green claimed pixel, got %+v", px)
	}

	// Unannotated pixels stay transparent.
	if px = img.RGBAAt(0, 0); px.A != 0 {
		t.Errorf("expected transparent pixel, got %+v", px)
	}
}

// TestRenderOverlayKeypoints verifies the keypoint marker lands at the
// projected position
func TestRenderOverlayKeypoints(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Keypoint.DisplayRadius = 0
	store, err := annotation.NewStore("p", [3]int{4, 4, 4})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := store.AddKeypoint(1, models.Point3{Z: 2, Y: 3, X: 1}); err != nil {
		t.Fatalf("failed to add keypoint: %v", err)
	}

	img, err := RenderOverlay(store, cfg, models.Axial, 2)
	if err != nil {
		t.Fatalf("failed to render overlay: %v", err)
	}

	px := img.RGBAAt(1, 3)
	if px.R != 255 || px.A != 255 {
		t.Errorf("expected opaque marker pixel, got %+v", px)
	}
}

// TestCompose verifies alpha blending of the overlay onto the base
func TestCompose(t *testing.T) {
	sl := &volume.Slice{Data: []float64{100}, Height: 1, Width: 1, Plane: models.Axial}
	base := RenderSlice(sl, Window{Center: 100, Width: 200})

	cfg := config.DefaultConfig()
	store, err := annotation.NewStore("p", [3]int{1, 1, 1})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.SetVoxelLabel(models.Voxel{}, 1); err != nil {
		t.Fatalf("failed to set label: %v", err)
	}
	overlay, err := RenderOverlay(store, cfg, models.Axial, 0)
	if err != nil {
		t.Fatalf("failed to render overlay: %v", err)
	}

	out := Compose(base, overlay)
	px := out.RGBAAt(0, 0)
	if px.A != 255 {
		t.Errorf("expected opaque output, got alpha %d", px.A)
	}
	// Half-opacity red over gray keeps red dominant over blue.
	if px.R <= px.B {
		t.Errorf("expected red-shifted pixel, got %+v", px)
	}
}

// TestSaveSliceSequence verifies one file per slice is written
func TestSaveSliceSequence(t *testing.T) {
	vol := grayVolume(t, 100)
	dir := t.TempDir()

	if err := SaveSliceSequence(vol, nil, nil, models.Axial, dir); err != nil {
		t.Fatalf("failed to save sequence: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read output dir: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 slices, got %d", len(entries))
	}
	if entries[0].Name() != "slice_axial_000.jpg" {
		t.Errorf("unexpected filename %q", entries[0].Name())
	}
	if _, err := os.Stat(filepath.Join(dir, "slice_axial_003.jpg")); err != nil {
		t.Errorf("missing last slice: %v", err)
	}
}

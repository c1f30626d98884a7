// Package raster maps between screen space and voxel space for one slice
// view, and renders slices with their annotation overlays. Pan/zoom state
// is per-view display state and never part of the annotation store.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
	"quicklabel3d/pkg/config"
	"quicklabel3d/pkg/volume"
)

// Window is an intensity display window.
type Window struct {
	Center float64
	Width  float64
}

// View is the display transform of one slice viewport: which plane and
// index it shows, plus pan offset (screen pixels) and zoom factor.
type View struct {
	Plane models.Plane
	Index int
	PanU  float64
	PanV  float64
	Zoom  float64
}

// NewView creates a view at 1:1 zoom.
func NewView(plane models.Plane, index int) View {
	return View{Plane: plane, Index: index, Zoom: 1}
}

// ScreenToSlice inverts the display transform, mapping a widget pixel to
// continuous in-plane (u, v) coordinates in voxel units.
func (v View) ScreenToSlice(sx, sy float64) (u, w float64) {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return (sx - v.PanU) / zoom, (sy - v.PanV) / zoom
}

// SliceToScreen maps in-plane coordinates to widget pixels.
func (v View) SliceToScreen(u, w float64) (sx, sy float64) {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return u*zoom + v.PanU, w*zoom + v.PanV
}

// ScreenToVolume resolves a widget pixel to a continuous volume-space
// position on the view's current slice.
func (v View) ScreenToVolume(sx, sy float64) models.Point3 {
	u, w := v.ScreenToSlice(sx, sy)
	return models.PlanePointToVolume(v.Plane, v.Index, u, w)
}

// RenderSlice draws one extracted slice with the window applied, mapping
// [center-width/2, center+width/2] onto the 8-bit gray range.
func RenderSlice(sl *volume.Slice, win Window) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, sl.Width, sl.Height))

	vmin := win.Center - win.Width/2
	vmax := win.Center + win.Width/2
	scale := 255 / (vmax - vmin + 1e-8)

	for row := 0; row < sl.Height; row++ {
		for col := 0; col < sl.Width; col++ {
			val := (sl.At(row, col) - vmin) * scale
			if val < 0 {
				val = 0
			}
			if val > 255 {
				val = 255
			}
			img.SetGray(col, row, color.Gray{Y: uint8(val)})
		}
	}
	return img
}

// AutoWindow derives a display window from the volume's percentile value
// range.
func AutoWindow(v *volume.Volume) Window {
	lo, hi := v.ValueRange(1, 99)
	return Window{Center: (lo + hi) / 2, Width: hi - lo}
}

// RenderOverlay draws the annotation overlay for a slice: user label
// regions, unclaimed reference regions underneath them, and keypoint
// markers projected onto the slice. Colors and opacity come from the label
// table configuration.
func RenderOverlay(store *annotation.Store, cfg *config.Config, plane models.Plane, index int) (*image.RGBA, error) {
	labels, h, w, err := store.LabelSlice(plane, index)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	opacity := cfg.Display.MaskOpacity

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			// Reference regions render only where the user has not
			// painted and the label is unclaimed.
			if store.HasReference() {
				ref := store.ReferenceAt(models.PlaneVoxel(plane, index, col, row))
				if ref != 0 {
					if c, ok := cfg.ColorByReferenceValue(ref); ok {
						img.SetRGBA(col, row, color.RGBA{R: c.R, G: c.G, B: c.B, A: opacity})
					}
				}
			}
			if id := labels[row*w+col]; id != 0 {
				if l, ok := cfg.LabelByID(int(id)); ok {
					img.SetRGBA(col, row, color.RGBA{R: l.Color.R, G: l.Color.G, B: l.Color.B, A: opacity})
				}
			}
		}
	}

	for _, pk := range store.KeypointsOnSlice(plane, index) {
		c := color.RGBA{R: 255, A: 255}
		if l, ok := cfg.LabelByID(pk.Keypoint.Label); ok {
			c = color.RGBA{R: l.Color.R, G: l.Color.G, B: l.Color.B, A: 255}
		}
		drawDisk(img, pk.U, pk.V, cfg.Keypoint.DisplayRadius, c)
	}

	return img, nil
}

// drawDisk fills a small circle marker, clipped to the image.
func drawDisk(img *image.RGBA, cu, cv float64, radius int, c color.RGBA) {
	r2 := float64(radius * radius)
	for dv := -radius; dv <= radius; dv++ {
		for du := -radius; du <= radius; du++ {
			if float64(du*du+dv*dv) > r2 {
				continue
			}
			x := int(math.Round(cu)) + du
			y := int(math.Round(cv)) + dv
			if image.Pt(x, y).In(img.Rect) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// Compose flattens the intensity slice and its overlay into one RGBA image
// for export.
func Compose(base *image.Gray, overlay *image.RGBA) *image.RGBA {
	out := image.NewRGBA(base.Rect)
	for y := base.Rect.Min.Y; y < base.Rect.Max.Y; y++ {
		for x := base.Rect.Min.X; x < base.Rect.Max.X; x++ {
			g := base.GrayAt(x, y).Y
			o := overlay.RGBAAt(x, y)
			a := float64(o.A) / 255
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(float64(o.R)*a + float64(g)*(1-a)),
				G: uint8(float64(o.G)*a + float64(g)*(1-a)),
				B: uint8(float64(o.B)*a + float64(g)*(1-a)),
				A: 255,
			})
		}
	}
	return out
}

// SaveSlice saves a rendered slice as a JPEG image.
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence renders and saves every slice of a plane, composited
// with the annotation overlay, into outputDir.
func SaveSliceSequence(vol *volume.Volume, store *annotation.Store, cfg *config.Config, plane models.Plane, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	win := AutoWindow(vol)
	for index := 0; index <= vol.MaxIndex(plane); index++ {
		sl, err := vol.Slice(plane, index)
		if err != nil {
			return err
		}
		base := RenderSlice(sl, win)

		img := image.Image(base)
		if store != nil {
			overlay, err := RenderOverlay(store, cfg, plane, index)
			if err != nil {
				return err
			}
			img = Compose(base, overlay)
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", plane, index))
		if err := SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// Geometric augmentation: flip, pad, rotate, upsample and recentring crop
package transform

import (
	"fmt"
	"image"
	"math"
)

// Variant is one deterministic (angle, zoom, flip) transform of a source image.
type Variant struct {
	Index int     // position within the image's variant sequence
	Angle float64 // degrees, positive is counter-clockwise
	Zoom  float64 // upsampling factor applied after rotation
	Flip  bool    // mirror the column axis before padding
}

func (v Variant) String() string {
	return fmt.Sprintf("#%d angle=%.1f zoom=%.2f flip=%t", v.Index, v.Angle, v.Zoom, v.Flip)
}

// ValidateVariant rejects parameters no engine can apply. It does not check
// that the zoom is large enough to hide the rotation border; that pairing is
// the caller's calibration.
func ValidateVariant(v Variant) error {
	if math.IsNaN(v.Angle) || math.IsInf(v.Angle, 0) {
		return fmt.Errorf("angle must be finite, got %v", v.Angle)
	}
	if math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) || v.Zoom <= 0 {
		return fmt.Errorf("zoom must be a positive finite number, got %v", v.Zoom)
	}
	return nil
}

// Center is the pixel center used for rotation and cropping: ceil((d-1)/2).
func Center(d int) int {
	if d <= 0 {
		return 0
	}
	return d / 2 // equals ceil((d-1)/2) for d >= 1
}

// Padding returns the constant border added on each side: floor(w/2)
// columns and floor(h/2) rows.
func Padding(w, h int) (px, py int) {
	return w / 2, h / 2
}

// ScaledSize is the size produced by upsampling a w x h image by zoom,
// rounded the way OpenCV's resize rounds when only factors are given.
func ScaledSize(w, h int, zoom float64) (int, int) {
	return int(math.Round(float64(w) * zoom)), int(math.Round(float64(h) * zoom))
}

// CropRect is the window of a bigW x bigH image whose center, measured as
// Center(d), coincides with the center of a w x h image. The window has
// exactly w x h pixels. It returns an error when the window does not fit.
func CropRect(bigW, bigH, w, h int) (image.Rectangle, error) {
	x0 := Center(bigW) - Center(w)
	y0 := Center(bigH) - Center(h)
	rect := image.Rect(x0, y0, x0+w, y0+h)
	if x0 < 0 || y0 < 0 || rect.Max.X > bigW || rect.Max.Y > bigH {
		return image.Rectangle{}, fmt.Errorf("crop %dx%d does not fit in %dx%d", w, h, bigW, bigH)
	}
	return rect, nil
}

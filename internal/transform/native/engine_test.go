package native

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-balancer/internal/transform"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestApply_PreservesDimensions(t *testing.T) {
	for _, size := range []struct{ w, h int }{{60, 20}, {61, 21}, {1, 1}, {9, 30}} {
		src := solid(size.w, size.h, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		for angle := 5.0; angle <= 30; angle += 5 {
			zoom := 1.3 + (angle/5-1)*0.3
			for _, flip := range []bool{false, true} {
				out, err := Apply(src, transform.Variant{Angle: angle, Zoom: zoom, Flip: flip})
				require.NoError(t, err)
				assert.Equal(t, size.w, out.Bounds().Dx(), "angle=%v flip=%v", angle, flip)
				assert.Equal(t, size.h, out.Bounds().Dy(), "angle=%v flip=%v", angle, flip)
			}
		}
	}
}

func TestApply_IdentityKeepsCenterPixel(t *testing.T) {
	src := solid(21, 11, color.RGBA{R: 10, G: 220, B: 30, A: 255})
	out, err := Apply(src, transform.Variant{Angle: 0, Zoom: 1})
	require.NoError(t, err)

	got := out.RGBAAt(10, 5)
	assert.Equal(t, uint8(10), got.R)
	assert.Equal(t, uint8(220), got.G)
	assert.Equal(t, uint8(30), got.B)
}

func TestFlipHorizontal(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 1, A: 255})
	src.SetRGBA(2, 0, color.RGBA{R: 3, A: 255})

	out := flipHorizontal(src)
	assert.Equal(t, uint8(3), out.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(1), out.RGBAAt(2, 0).R)
}

// marked is a black w x h image with one red pixel at (x, y).
func marked(w, h, x, y int) *image.RGBA {
	img := solid(w, h, color.RGBA{A: 255})
	img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
	return img
}

func assertMarker(t *testing.T, img *image.RGBA, x, y int) {
	t.Helper()
	assert.Greater(t, img.RGBAAt(x, y).R, uint8(200), "marker expected at (%d,%d)", x, y)
	for _, p := range []image.Point{image.Pt(x-1, y), image.Pt(x+1, y), image.Pt(x, y-1), image.Pt(x, y+1)} {
		assert.Less(t, img.RGBAAt(p.X, p.Y).R, uint8(50), "no marker at (%d,%d)", p.X, p.Y)
	}
}

func TestRotate_QuarterTurnAboutCenterPixel(t *testing.T) {
	// x' = y + cx - cy, y' = -x + cx + cy with cx = cy = 4
	out := rotate(marked(9, 9, 6, 4), 90)
	assertMarker(t, out, 4, 2)
	assert.Less(t, out.RGBAAt(4, 1).R, uint8(50))
}

func TestRotate_CenterPixelIsFixed(t *testing.T) {
	for _, angle := range []float64{5, 30, 90, 180, -45} {
		out := rotate(marked(9, 7, 4, 3), angle)
		assert.Greater(t, out.RGBAAt(4, 3).R, uint8(120), "angle=%v", angle)
	}
}

func TestApply_FlipMirrorsOutput(t *testing.T) {
	src := marked(9, 5, 1, 2)

	plain, err := Apply(src, transform.Variant{Angle: 0, Zoom: 1})
	require.NoError(t, err)
	assertMarker(t, plain, 1, 2)

	flipped, err := Apply(src, transform.Variant{Angle: 0, Zoom: 1, Flip: true})
	require.NoError(t, err)
	assertMarker(t, flipped, 7, 2)
	assert.Less(t, flipped.RGBAAt(1, 2).R, uint8(50))
}

func TestApply_PositiveAngleTurnsCounterClockwise(t *testing.T) {
	// right of center moves above center
	out, err := Apply(marked(9, 9, 6, 4), transform.Variant{Angle: 90, Zoom: 1})
	require.NoError(t, err)
	assertMarker(t, out, 4, 2)

	out, err = Apply(marked(9, 9, 6, 4), transform.Variant{Angle: -90, Zoom: 1})
	require.NoError(t, err)
	assertMarker(t, out, 4, 6)
}

func TestPad_AddsHalfBorder(t *testing.T) {
	out := pad(solid(7, 4, color.RGBA{R: 255, A: 255}))
	assert.Equal(t, 7+2*3, out.Bounds().Dx())
	assert.Equal(t, 4+2*2, out.Bounds().Dy())
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, uint8(255), out.RGBAAt(3, 2).R)
}

func TestApply_RejectsBadVariant(t *testing.T) {
	_, err := Apply(solid(4, 4, color.RGBA{A: 255}), transform.Variant{Angle: 5, Zoom: 0})
	assert.Error(t, err)
}

func TestEngine_AugmentWritesSameSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "23_src.png")
	dst := filepath.Join(dir, "23_out.JPG")
	require.NoError(t, Encode(src, solid(48, 32, color.RGBA{R: 90, G: 90, B: 200, A: 255})))

	engine, err := transform.Open(Name, logrus.New())
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.Augment(src, dst, transform.Variant{Angle: 15, Zoom: 1.9, Flip: true}))

	out, err := Decode(dst)
	require.NoError(t, err)
	assert.Equal(t, 48, out.Bounds().Dx())
	assert.Equal(t, 32, out.Bounds().Dy())
}

func TestEncode_UnsupportedExtension(t *testing.T) {
	err := Encode(filepath.Join(t.TempDir(), "x.gif"), solid(2, 2, color.RGBA{A: 255}))
	assert.Error(t, err)
}

// Pure Go transform engine built on golang.org/x/image/draw
package native

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"label-balancer/internal/transform"
)

// Name is the registry key of this engine.
const Name = "native"

func init() {
	transform.Register(Name, func(logger logrus.FieldLogger) (transform.Engine, error) {
		return New(logger), nil
	})
}

// Engine needs no OpenCV installation. Bicubic upsampling uses Catmull-Rom.
type Engine struct {
	logger logrus.FieldLogger
}

func New(logger logrus.FieldLogger) *Engine {
	return &Engine{logger: logger.WithField("engine", Name)}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Close() error { return nil }

func (e *Engine) Augment(src, dst string, v transform.Variant) error {
	if err := transform.ValidateVariant(v); err != nil {
		return err
	}

	img, err := Decode(src)
	if err != nil {
		return err
	}

	out, err := Apply(img, v)
	if err != nil {
		return fmt.Errorf("augment %s (%s): %w", src, v, err)
	}
	if err := Encode(dst, out); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"src":     src,
		"dst":     dst,
		"variant": v.String(),
	}).Debug("Image augmented")
	return nil
}

// Apply returns a new image with the same width and height as src.
func Apply(src image.Image, v transform.Variant) (*image.RGBA, error) {
	if err := transform.ValidateVariant(v); err != nil {
		return nil, err
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", w, h)
	}

	working := toRGBA(src)
	if v.Flip {
		working = flipHorizontal(working)
	}

	padded := pad(working)
	rotated := rotate(padded, v.Angle)

	bigW, bigH := transform.ScaledSize(rotated.Bounds().Dx(), rotated.Bounds().Dy(), v.Zoom)
	zoomed := image.NewRGBA(image.Rect(0, 0, bigW, bigH))
	draw.CatmullRom.Scale(zoomed, zoomed.Bounds(), rotated, rotated.Bounds(), draw.Src, nil)

	rect, err := transform.CropRect(bigW, bigH, w, h)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), zoomed, rect.Min, draw.Src)
	return out, nil
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func flipHorizontal(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(b.Max.X-1-(x-b.Min.X), y, src.RGBAAt(x, y))
		}
	}
	return dst
}

// pad surrounds src with floor(w/2) columns and floor(h/2) rows of black.
func pad(src *image.RGBA) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	px, py := transform.Padding(w, h)
	dst := blackCanvas(w+2*px, h+2*py)
	draw.Draw(dst, image.Rect(px, py, px+w, py+h), src, src.Bounds().Min, draw.Src)
	return dst
}

// rotate turns src counter-clockwise about the pixel at transform.Center of
// each axis, keeping the canvas size. Uncovered pixels stay black.
func rotate(src *image.RGBA, angle float64) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := blackCanvas(w, h)

	// draw measures from pixel corners, so pixel i is centred at i+0.5
	cx, cy := float64(transform.Center(w))+0.5, float64(transform.Center(h))+0.5
	rad := angle * math.Pi / 180
	a, b := math.Cos(rad), math.Sin(rad)
	s2d := f64.Aff3{
		a, b, (1-a)*cx - b*cy,
		-b, a, b*cx + (1-a)*cy,
	}
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return dst
}

func blackCanvas(w, h int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{A: 0xff}}, image.Point{}, draw.Src)
	return canvas
}

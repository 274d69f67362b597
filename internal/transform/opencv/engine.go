// OpenCV transform engine
package opencv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"label-balancer/internal/transform"
)

// Name is the registry key of this engine.
const Name = "opencv"

func init() {
	transform.Register(Name, func(logger logrus.FieldLogger) (transform.Engine, error) {
		return New(logger), nil
	})
}

// Engine runs the flip, pad, rotate, resize and crop steps with gocv.
type Engine struct {
	loader *ImageLoader
	logger logrus.FieldLogger
}

func New(logger logrus.FieldLogger) *Engine {
	return &Engine{
		loader: NewImageLoader(logger),
		logger: logger.WithField("engine", Name),
	}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Close() error { return nil }

// Augment reads src, applies v and writes the result to dst.
func (e *Engine) Augment(src, dst string, v transform.Variant) error {
	if err := transform.ValidateVariant(v); err != nil {
		return err
	}

	input, err := e.loader.LoadImage(src)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := Apply(input, v)
	if err != nil {
		return fmt.Errorf("augment %s (%s): %w", src, v, err)
	}
	defer output.Close()

	return e.loader.SaveImage(output, dst)
}

// Apply returns a new Mat of the same size as src. The caller closes it.
func Apply(src gocv.Mat, v transform.Variant) (gocv.Mat, error) {
	if err := ValidateImage(src); err != nil {
		return gocv.NewMat(), err
	}
	w, h := src.Cols(), src.Rows()

	working := src.Clone()
	defer func() { working.Close() }()

	if v.Flip {
		flipped := gocv.NewMat()
		gocv.Flip(working, &flipped, 1)
		if flipped.Empty() {
			flipped.Close()
			return gocv.NewMat(), fmt.Errorf("flip failed")
		}
		working.Close()
		working = flipped
	}

	px, py := transform.Padding(w, h)
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(working, &padded, py, py, px, px, gocv.BorderConstant, color.RGBA{})
	if padded.Empty() {
		return gocv.NewMat(), fmt.Errorf("padding failed")
	}

	center := image.Pt(transform.Center(padded.Cols()), transform.Center(padded.Rows()))
	rotation := gocv.GetRotationMatrix2D(center, v.Angle, 1.0)
	defer rotation.Close()

	rotated := gocv.NewMat()
	defer rotated.Close()
	gocv.WarpAffine(padded, &rotated, rotation, image.Pt(padded.Cols(), padded.Rows()))
	if rotated.Empty() {
		return gocv.NewMat(), fmt.Errorf("rotation failed")
	}

	zoomed := gocv.NewMat()
	defer zoomed.Close()
	if err := gocv.Resize(rotated, &zoomed, image.Point{}, v.Zoom, v.Zoom, gocv.InterpolationCubic); err != nil {
		return gocv.NewMat(), fmt.Errorf("resize failed: %w", err)
	}

	rect, err := transform.CropRect(zoomed.Cols(), zoomed.Rows(), w, h)
	if err != nil {
		return gocv.NewMat(), err
	}
	region := zoomed.Region(rect)
	defer region.Close()

	return region.Clone(), nil
}

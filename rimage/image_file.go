package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// NewImageFromFile decodes the image at the given path and converts it to an
// intensity image. The format is determined by the file contents.
func NewImageFromFile(fn string) (*Image, error) {
	img, err := imaging.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image from %q", fn)
	}
	return NewImageFromImage(img), nil
}

// WriteTo encodes the image to the given path. The format is chosen from the
// file extension (.png, .tif, .jpg, ...). Intensities are clamped to [0, 255].
func (i *Image) WriteTo(fn string) error {
	out := image.NewGray(i.Bounds())
	for y := 0; y < i.height; y++ {
		for x := 0; x < i.width; x++ {
			v := math.Round(i.GetXY(x, y))
			if math.IsNaN(v) || v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	if err := imaging.Save(out, fn); err != nil {
		return errors.Wrapf(err, "cannot write image to %q", fn)
	}
	return nil
}

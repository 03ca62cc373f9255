// Package rimage defines the grayscale intensity image used by the stereo
// geometry routines, along with file IO and sub-pixel sampling.
package rimage

import (
	"image"
	"image/color"
)

// Image is a grayscale image storing one float64 intensity per pixel in the
// range [0, 255]. Mutating accessors are not safe for concurrent use on the
// same pixel; disjoint pixels may be written concurrently.
type Image struct {
	width, height int
	data          []float64
}

// NewImage returns a zeroed intensity image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewImageFromImage converts any image.Image to an intensity image using the
// standard luma weights.
func NewImageFromImage(img image.Image) *Image {
	bounds := img.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			g := color.GrayModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray)
			out.data[y*out.width+x] = float64(g.Y)
		}
	}
	return out
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// Width returns the horizontal size in pixels.
func (i *Image) Width() int {
	return i.width
}

// Height returns the vertical size in pixels.
func (i *Image) Height() int {
	return i.height
}

// Bounds returns the image bounds anchored at the origin.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// In reports whether (x, y) lies inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

// GetXY returns the intensity at (x, y).
func (i *Image) GetXY(x, y int) float64 {
	return i.data[i.kxy(x, y)]
}

// SetXY stores an intensity at (x, y).
func (i *Image) SetXY(x, y int, v float64) {
	i.data[i.kxy(x, y)] = v
}

package rimage

import "math"

// keysFourth is the fourth-order-accurate cubic convolution kernel from
// Keys (1981), with support [-3, 3]. It is exact on cubic polynomials and
// interpolating: weight 1 at s=0 and 0 at every other integer offset.
func keysFourth(s float64) float64 {
	s = math.Abs(s)
	switch {
	case s < 1:
		return ((6.0/5.0)*s-(11.0/5.0))*s*s + 1.0
	case s < 2:
		return ((-(3.0/5.0)*s+(16.0/5.0))*s-(27.0/5.0))*s + 14.0/5.0
	case s < 3:
		return (((1.0/5.0)*s-(8.0/5.0))*s+(21.0/5.0))*s - 18.0/5.0
	default:
		return 0
	}
}

// InterpolateKeysFourth samples the image at real-valued coordinates using
// fourth-order Keys cubic convolution over a 6x6 neighborhood. Near the
// border it falls back to bilinear interpolation; outside the image it
// returns 0.
func (i *Image) InterpolateKeysFourth(x, y float64) float64 {
	if x < 0 || y < 0 || x > float64(i.width-1) || y > float64(i.height-1) {
		return 0
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	if x0 < 2 || y0 < 2 || x0 >= i.width-3 || y0 >= i.height-3 {
		return i.interpolateBilinear(x, y)
	}
	dx := x - float64(x0)
	dy := y - float64(y0)
	var sum float64
	for n := -2; n <= 3; n++ {
		wy := keysFourth(float64(n) - dy)
		if wy == 0 {
			continue
		}
		var row float64
		base := (y0 + n) * i.width
		for m := -2; m <= 3; m++ {
			row += keysFourth(float64(m)-dx) * i.data[base+x0+m]
		}
		sum += wy * row
	}
	return sum
}

func (i *Image) interpolateBilinear(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= i.width {
		x1 = i.width - 1
	}
	if y1 >= i.height {
		y1 = i.height - 1
	}
	dx := x - float64(x0)
	dy := y - float64(y0)
	top := (1-dx)*i.GetXY(x0, y0) + dx*i.GetXY(x1, y0)
	bottom := (1-dx)*i.GetXY(x0, y1) + dx*i.GetXY(x1, y1)
	return (1-dy)*top + dy*bottom
}

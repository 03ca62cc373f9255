// Package transform implements the calibration, triangulation and projective
// transform estimation for a two-camera stereo rig.
package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fieldcorr/stereogeom/utils"
)

// CBAnglesToTransform converts a Cardan-Bryant pose (rotation angles in
// degrees plus a translation) to a 4x4 homogeneous rigid transform. The
// rotation is the intrinsic X-Y-Z composition written out in closed form.
func CBAnglesToTransform(alpha, beta, gamma, tx, ty, tz float64) *mat.Dense {
	cx := math.Cos(utils.DegToRad(alpha))
	sx := math.Sin(utils.DegToRad(alpha))
	cy := math.Cos(utils.DegToRad(beta))
	sy := math.Sin(utils.DegToRad(beta))
	cz := math.Cos(utils.DegToRad(gamma))
	sz := math.Sin(utils.DegToRad(gamma))
	return mat.NewDense(4, 4, []float64{
		cy * cz, sx*sy*cz - cx*sz, cx*sy*cz + sx*sz, tx,
		cy * sz, sx*sy*sz + cx*cz, cx*sy*sz - sx*cz, ty,
		-sy, sx * cy, cx * cy, tz,
		0, 0, 0, 1,
	})
}

// InvertTransform returns the inverse of a 4x4 homogeneous transform. The
// inverse is computed from an LU factorization with partial pivoting; a
// non-invertible input returns ErrSingularMatrix.
func InvertTransform(t *mat.Dense) (*mat.Dense, error) {
	inv := mat.NewDense(4, 4, nil)
	if err := invertSquare(inv, t); err != nil {
		return nil, err
	}
	return inv, nil
}

// invertSquare inverts a small square matrix into dst. It is the single
// numeric-backend touch point for inversion, so swapping gonum out does not
// reach into the calibration or triangulation logic.
func invertSquare(dst *mat.Dense, m mat.Matrix) error {
	if err := dst.Inverse(m); err != nil {
		cond, conditioned := err.(mat.Condition)
		if !conditioned || math.IsInf(float64(cond), 0) {
			return errors.Wrap(ErrSingularMatrix, err.Error())
		}
		// ill-conditioned but factorized; keep the result like a raw
		// LAPACK GETRI would
	}
	return nil
}

// composeTransforms returns a·b for 4x4 transforms.
func composeTransforms(a, b *mat.Dense) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	out.Mul(a, b)
	return out
}

// identityTransform returns the 4x4 identity.
func identityTransform() *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		out.Set(i, i, 1)
	}
	return out
}

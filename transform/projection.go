package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// depthTolerance bounds how far the recovered homogeneous depth may deviate
// from 1 before the forward projection is considered suspect.
const depthTolerance = 0.1

// ProjectCameraToSensor1 forward-projects a camera-0-frame 3D point into
// camera-1 sensor coordinates using the full projective camera model. The
// recovered homogeneous depth must be close to 1; a larger deviation points
// at a calibration or algebra error and is logged as a warning, or returned
// as an error when StrictDepthCheck is set.
func (tr *Triangulation) ProjectCameraToSensor1(xc, yc, zc float64) (r2.Point, error) {
	cal := tr.Calibration()
	if cal == nil {
		return r2.Point{}, ErrNoCalibration
	}
	i1 := &cal.Intrinsics[1]
	t := cal.CamToCam

	// 3x4 camera-1 projection matrix: intrinsics composed with the
	// camera0->camera1 extrinsics
	f2 := mat.NewDense(3, 4, []float64{
		i1.Fx, i1.Fs, i1.Cx, 0,
		0, i1.Fy, i1.Cy, 0,
		0, 0, 1, 0,
	})
	var p mat.Dense
	p.Mul(f2, t)

	psi := t.At(2, 0)*xc + t.At(2, 1)*yc + t.At(2, 2)*zc + t.At(2, 3)
	if psi == 0 {
		return r2.Point{}, errors.New("point projects to zero depth in camera 1")
	}
	xs := (p.At(0, 0)*xc + p.At(0, 1)*yc + p.At(0, 2)*zc + p.At(0, 3)) / psi
	ys := (p.At(1, 0)*xc + p.At(1, 1)*yc + p.At(1, 2)*zc + p.At(1, 3)) / psi
	z2 := (p.At(2, 0)*xc + p.At(2, 1)*yc + p.At(2, 2)*zc + p.At(2, 3)) / psi
	if math.Abs(z2-1) > depthTolerance {
		if tr.StrictDepthCheck {
			return r2.Point{}, errors.Errorf("projected homogeneous depth %v deviates from 1; check the calibration", z2)
		}
		tr.logger.Warnf("projected homogeneous depth %v deviates from 1; check the calibration", z2)
	}
	return r2.Point{X: xs, Y: ys}, nil
}

// ProjectLeftToRight maps a left-image sensor coordinate directly to the
// right image through the estimated 8-parameter projective transform.
// Returns ErrNotInitialized if no transform has been estimated or set.
func (tr *Triangulation) ProjectLeftToRight(xl, yl float64) (r2.Point, error) {
	tr.mu.RLock()
	p := tr.projectives
	tr.mu.RUnlock()
	if p == nil {
		return r2.Point{}, ErrNotInitialized
	}
	return applyProjective(p, xl, yl), nil
}

// ProjectiveTransform returns a copy of the current 8 projective
// coefficients [a b c d e f g h], or nil if none has been estimated.
func (tr *Triangulation) ProjectiveTransform() []float64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if tr.projectives == nil {
		return nil
	}
	out := make([]float64, len(tr.projectives))
	copy(out, tr.projectives)
	return out
}

// SetProjectiveTransform installs previously estimated coefficients, e.g.
// read back from a report file.
func (tr *Triangulation) SetProjectiveTransform(coeffs []float64) error {
	if len(coeffs) != numProjectiveParams {
		return errors.Errorf("projective transform needs %d coefficients, got %d", numProjectiveParams, len(coeffs))
	}
	stored := make([]float64, numProjectiveParams)
	copy(stored, coeffs)
	tr.mu.Lock()
	tr.projectives = stored
	tr.mu.Unlock()
	return nil
}

// applyProjective evaluates xr=(a·xl+b·yl+c)/(g·xl+h·yl+1) and the matching
// yr expression.
func applyProjective(p []float64, xl, yl float64) r2.Point {
	den := p[6]*xl + p[7]*yl + 1
	return r2.Point{
		X: (p[0]*xl + p[1]*yl + p[2]) / den,
		Y: (p[3]*xl + p[4]*yl + p[5]) / den,
	}
}

package transform

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoCalibration is when an operation needs calibration parameters that
// have not been loaded.
var ErrNoCalibration = errors.New("calibration parameters are not available")

// Triangulation holds the calibration of a stereo rig and an optional
// projective transform between its two views. Triangulation and projection
// calls are pure functions of their inputs plus these values and may run
// concurrently; loading a calibration or estimating a projective transform
// is a single-writer swap relative to any in-flight read.
type Triangulation struct {
	logger golog.Logger

	// StrictDepthCheck makes an out-of-tolerance homogeneous depth in
	// ProjectCameraToSensor1 an error instead of a logged warning. Set
	// before use.
	StrictDepthCheck bool

	mu          sync.RWMutex
	cal         *Calibration
	projectives []float64

	scratch sync.Pool
}

// NewTriangulation returns a Triangulation with no calibration loaded.
func NewTriangulation(logger golog.Logger) *Triangulation {
	tr := &Triangulation{logger: logger}
	tr.scratch.New = func() interface{} {
		return newTriangulateScratch()
	}
	return tr
}

// LoadCalibration parses the given calibration file and swaps it in. An
// error leaves any previously loaded calibration untouched.
func (tr *Triangulation) LoadCalibration(fn string) error {
	cal, err := LoadCalibration(fn, tr.logger)
	if err != nil {
		return err
	}
	tr.mu.Lock()
	tr.cal = cal
	tr.mu.Unlock()
	return nil
}

// SetCalibration swaps in an already built calibration, e.g. a synthetic rig.
func (tr *Triangulation) SetCalibration(cal *Calibration) {
	tr.mu.Lock()
	tr.cal = cal
	tr.mu.Unlock()
}

// Calibration returns the currently loaded calibration, or nil.
func (tr *Triangulation) Calibration() *Calibration {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.cal
}

// triangulateScratch preallocates the matrices for one triangulation solve.
// Instances are pooled so concurrent calls never share a buffer.
type triangulateScratch struct {
	m      *mat.Dense    // 4x3 design matrix
	mtm    *mat.Dense    // 3x3 normal matrix
	mtmInv *mat.Dense    // 3x3 inverse
	pinv   *mat.Dense    // 3x4 pseudo-inverse
	r      *mat.VecDense // rhs
	xyz    *mat.VecDense // solution
}

func newTriangulateScratch() *triangulateScratch {
	return &triangulateScratch{
		m:      mat.NewDense(4, 3, nil),
		mtm:    mat.NewDense(3, 3, nil),
		mtmInv: mat.NewDense(3, 3, nil),
		pinv:   mat.NewDense(3, 4, nil),
		r:      mat.NewVecDense(4, nil),
		xyz:    mat.NewVecDense(3, nil),
	}
}

// Triangulate recovers the 3D point observed at sensor coordinates (x0, y0)
// in camera 0 and (x1, y1) in camera 1. It returns the point in the camera-0
// frame and in world coordinates. When correctDistortion is set, each sensor
// coordinate is first corrected for radial lens distortion with that
// camera's coefficients.
//
// The two cameras contribute four linear equations in the three unknown
// coordinates; the system is solved in the least-squares sense through the
// normal equations. Degenerate geometry (parallel rays, coincident cameras)
// returns ErrSingularMatrix.
func (tr *Triangulation) Triangulate(x0, y0, x1, y1 float64, correctDistortion bool) (r3.Vector, r3.Vector, error) {
	cal := tr.Calibration()
	if cal == nil {
		return r3.Vector{}, r3.Vector{}, ErrNoCalibration
	}
	tr.logger.Debugf("triangulate: camera 0 sensor coords %v %v camera 1 sensor coords %v %v", x0, y0, x1, y1)
	if correctDistortion {
		x0, y0 = cal.CorrectRadialDistortion(x0, y0, 0)
		x1, y1 = cal.CorrectRadialDistortion(x1, y1, 1)
		tr.logger.Debugf("triangulate: distortion corrected coords %v %v / %v %v", x0, y0, x1, y1)
	}

	s := tr.scratch.Get().(*triangulateScratch)
	defer tr.scratch.Put(s)

	i0 := &cal.Intrinsics[0]
	i1 := &cal.Intrinsics[1]
	t := cal.CamToCam

	// camera 0 rows: principal-point offset against focal/skew terms
	s.m.Set(0, 0, i0.Fx)
	s.m.Set(0, 1, i0.Fs)
	s.m.Set(0, 2, i0.Cx-x0)
	s.m.Set(1, 0, 0)
	s.m.Set(1, 1, i0.Fy)
	s.m.Set(1, 2, i0.Cy-y0)
	// camera 1 rows: relative extrinsic rotation folded into the intrinsics
	cmx := i1.Cx - x1
	cmy := i1.Cy - y1
	s.m.Set(2, 0, cmx*t.At(2, 0)+i1.Fx*t.At(0, 0)+i1.Fs*t.At(1, 0))
	s.m.Set(2, 1, cmx*t.At(2, 1)+i1.Fx*t.At(0, 1)+i1.Fs*t.At(1, 1))
	s.m.Set(2, 2, cmx*t.At(2, 2)+i1.Fx*t.At(0, 2)+i1.Fs*t.At(1, 2))
	s.m.Set(3, 0, cmy*t.At(2, 0)+i1.Fy*t.At(1, 0))
	s.m.Set(3, 1, cmy*t.At(2, 1)+i1.Fy*t.At(1, 1))
	s.m.Set(3, 2, cmy*t.At(2, 2)+i1.Fy*t.At(1, 2))
	s.r.SetVec(0, 0)
	s.r.SetVec(1, 0)
	s.r.SetVec(2, -i1.Fx*t.At(0, 3)-i1.Fs*t.At(1, 3)-cmx*t.At(2, 3))
	s.r.SetVec(3, -i1.Fy*t.At(1, 3)-cmy*t.At(2, 3))

	// least squares via the normal equations: (M^T M)^-1 M^T r
	s.mtm.Mul(s.m.T(), s.m)
	if err := invertSquare(s.mtmInv, s.mtm); err != nil {
		return r3.Vector{}, r3.Vector{}, errors.Wrap(err, "triangulation geometry is degenerate")
	}
	s.pinv.Mul(s.mtmInv, s.m.T())
	s.xyz.MulVec(s.pinv, s.r)

	cam := r3.Vector{X: s.xyz.AtVec(0), Y: s.xyz.AtVec(1), Z: s.xyz.AtVec(2)}
	tr.logger.Debugf("triangulate: camera 0 coordinates %v", cam)

	w := cal.CamToWorld
	world := r3.Vector{
		X: w.At(0, 0)*cam.X + w.At(0, 1)*cam.Y + w.At(0, 2)*cam.Z + w.At(0, 3),
		Y: w.At(1, 0)*cam.X + w.At(1, 1)*cam.Y + w.At(1, 2)*cam.Z + w.At(1, 3),
		Z: w.At(2, 0)*cam.X + w.At(2, 1)*cam.Y + w.At(2, 2)*cam.Z + w.At(2, 3),
	}
	tr.logger.Debugf("triangulate: world coordinates %v", world)
	return cam, world, nil
}

package transform

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

// testRig is a converging stereo pair: camera 1 is shifted along -X and
// rotated about Y so the views overlap.
func testRig() *Calibration {
	cal := &Calibration{
		CamToCam:   CBAnglesToTransform(0, 10, 0, -100, 0, 5),
		CamToWorld: identityTransform(),
	}
	cal.Intrinsics[0] = CameraIntrinsics{Cx: 320, Cy: 240, Fx: 500, Fy: 505, Fs: 0.1}
	cal.Intrinsics[1] = CameraIntrinsics{Cx: 330, Cy: 250, Fx: 510, Fy: 515, Fs: -0.1}
	return cal
}

// projectToSensor0 applies the pinhole model of camera 0.
func projectToSensor0(cal *Calibration, p r3.Vector) (float64, float64) {
	i0 := cal.Intrinsics[0]
	xs := i0.Cx + (i0.Fx*p.X+i0.Fs*p.Y)/p.Z
	ys := i0.Cy + i0.Fy*p.Y/p.Z
	return xs, ys
}

func TestTriangulateRoundTrip(t *testing.T) {
	tr := NewTriangulation(golog.NewTestLogger(t))
	tr.SetCalibration(testRig())

	for _, p := range []r3.Vector{
		{X: 0, Y: 0, Z: 1000},
		{X: 50, Y: -20, Z: 800},
		{X: -120, Y: 75, Z: 1500},
	} {
		x0, y0 := projectToSensor0(tr.Calibration(), p)
		s1, err := tr.ProjectCameraToSensor1(p.X, p.Y, p.Z)
		test.That(t, err, test.ShouldBeNil)

		cam, world, err := tr.Triangulate(x0, y0, s1.X, s1.Y, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cam.X, test.ShouldAlmostEqual, p.X, 1e-6)
		test.That(t, cam.Y, test.ShouldAlmostEqual, p.Y, 1e-6)
		test.That(t, cam.Z, test.ShouldAlmostEqual, p.Z, 1e-6)
		// identity world transform
		test.That(t, world.X, test.ShouldAlmostEqual, cam.X, 1e-9)
		test.That(t, world.Y, test.ShouldAlmostEqual, cam.Y, 1e-9)
		test.That(t, world.Z, test.ShouldAlmostEqual, cam.Z, 1e-9)
	}
}

func TestTriangulateWorldTransform(t *testing.T) {
	tr := NewTriangulation(golog.NewTestLogger(t))
	cal := testRig()
	cal.CamToWorld = CBAnglesToTransform(0, 0, 90, 10, 20, 30)
	tr.SetCalibration(cal)

	p := r3.Vector{X: 50, Y: -20, Z: 800}
	x0, y0 := projectToSensor0(cal, p)
	s1, err := tr.ProjectCameraToSensor1(p.X, p.Y, p.Z)
	test.That(t, err, test.ShouldBeNil)

	_, world, err := tr.Triangulate(x0, y0, s1.X, s1.Y, false)
	test.That(t, err, test.ShouldBeNil)
	// 90 degrees about Z plus the translation
	test.That(t, world.X, test.ShouldAlmostEqual, -p.Y+10, 1e-6)
	test.That(t, world.Y, test.ShouldAlmostEqual, p.X+20, 1e-6)
	test.That(t, world.Z, test.ShouldAlmostEqual, p.Z+30, 1e-6)
}

func TestTriangulateDistortionRoundTrip(t *testing.T) {
	tr := NewTriangulation(golog.NewTestLogger(t))
	cal := testRig()
	tr.SetCalibration(cal)

	// distort the true sensor coordinates with the forward model, then
	// triangulate with correction enabled
	p := r3.Vector{X: 30, Y: 40, Z: 1200}
	x0, y0 := projectToSensor0(cal, p)
	s1, err := tr.ProjectCameraToSensor1(p.X, p.Y, p.Z)
	test.That(t, err, test.ShouldBeNil)

	cal.Intrinsics[0].K1 = 0.01
	cal.Intrinsics[1].K1 = 0.02
	distort := func(xs, ys float64, ci CameraIntrinsics) (float64, float64) {
		r1 := (xs - ci.Cx) / ci.Cx
		r2 := (ys - ci.Cy) / ci.Cy
		rho := r1*r1 + r2*r2
		factor := ci.K1*rho + ci.K2*rho*rho + ci.K3*rho*rho*rho
		return xs + factor*r1*ci.Cx, ys + factor*r2*ci.Cy
	}
	dx0, dy0 := distort(x0, y0, cal.Intrinsics[0])
	dx1, dy1 := distort(s1.X, s1.Y, cal.Intrinsics[1])

	// the correction is a single-pass approximation of the true inverse, so
	// the recovery is close but not exact
	cam, _, err := tr.Triangulate(dx0, dy0, dx1, dy1, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.X, test.ShouldAlmostEqual, p.X, 0.5)
	test.That(t, cam.Y, test.ShouldAlmostEqual, p.Y, 0.5)
	test.That(t, cam.Z, test.ShouldAlmostEqual, p.Z, 5)
}

func TestTriangulateNoCalibration(t *testing.T) {
	tr := NewTriangulation(golog.NewTestLogger(t))
	_, _, err := tr.Triangulate(0, 0, 0, 0, false)
	test.That(t, err, test.ShouldBeError, ErrNoCalibration)

	_, err = tr.ProjectCameraToSensor1(0, 0, 100)
	test.That(t, err, test.ShouldBeError, ErrNoCalibration)
}

func TestProjectCameraToSensor1StrictDepth(t *testing.T) {
	tr := NewTriangulation(golog.NewTestLogger(t))
	tr.SetCalibration(testRig())
	tr.StrictDepthCheck = true

	// a well-formed rigid calibration always recovers depth 1 exactly
	s1, err := tr.ProjectCameraToSensor1(50, -20, 800)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s1.X, test.ShouldBeGreaterThan, 0.0)
}

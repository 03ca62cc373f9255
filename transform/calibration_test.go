package transform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

const genericCalFixture = `# stereo rig calibration
# camera 0 intrinsics
320.0
240.0  # cx cy then focal lengths
500.0
505.0
0.1
0.001
0.0002
0.00003
# camera 1 intrinsics
330.0
250.0
510.0
515.0
-0.1
0.004
0.0005
0.00006
# camera 0 to camera 1 pose
0.0
10.0
0.0
-100.0
0.0
5.0
`

func writeCalFile(t *testing.T, name, contents string) string {
	t.Helper()
	fn := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(fn, []byte(contents), 0o644), test.ShouldBeNil)
	return fn
}

func TestParseGenericCalibration(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cal, err := LoadCalibration(writeCalFile(t, "rig.txt", genericCalFixture), logger)
	test.That(t, err, test.ShouldBeNil)

	i0 := cal.Intrinsics[0]
	test.That(t, i0.Cx, test.ShouldEqual, 320.0)
	test.That(t, i0.Cy, test.ShouldEqual, 240.0)
	test.That(t, i0.Fx, test.ShouldEqual, 500.0)
	test.That(t, i0.Fy, test.ShouldEqual, 505.0)
	test.That(t, i0.Fs, test.ShouldEqual, 0.1)
	test.That(t, i0.K1, test.ShouldEqual, 0.001)
	test.That(t, i0.K2, test.ShouldEqual, 0.0002)
	test.That(t, i0.K3, test.ShouldEqual, 0.00003)
	i1 := cal.Intrinsics[1]
	test.That(t, i1.Cx, test.ShouldEqual, 330.0)
	test.That(t, i1.K3, test.ShouldEqual, 0.00006)

	matricesAlmostEqual(t, cal.CamToCam, CBAnglesToTransform(0, 10, 0, -100, 0, 5), 1e-12)
	// no custom world pose: world frame is the camera 0 frame
	matricesAlmostEqual(t, cal.CamToWorld, identityTransform(), 1e-12)
}

func TestParseGenericCalibrationCustomWorld(t *testing.T) {
	logger := golog.NewTestLogger(t)
	fixture := genericCalFixture + `# world pose, stored inverted
5.0
-3.0
20.0
7.0
8.0
9.0
`
	cal, err := LoadCalibration(writeCalFile(t, "rig.txt", fixture), logger)
	test.That(t, err, test.ShouldBeNil)

	pose := CBAnglesToTransform(5, -3, 20, 7, 8, 9)
	matricesAlmostEqual(t, composeTransforms(pose, cal.CamToWorld), identityTransform(), 1e-10)
}

func TestParseGenericCalibrationErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)

	// truncated file
	short := strings.Join(strings.Split(genericCalFixture, "\n")[:10], "\n")
	_, err := LoadCalibration(writeCalFile(t, "rig.txt", short), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// two values on one line
	_, err = LoadCalibration(writeCalFile(t, "rig.txt", "320.0 240.0\n"), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// non-numeric token
	_, err = LoadCalibration(writeCalFile(t, "rig.txt", strings.Replace(genericCalFixture, "505.0", "fivehundred", 1)), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// non-positive principal point
	_, err = LoadCalibration(writeCalFile(t, "rig.txt", strings.Replace(genericCalFixture, "320.0", "0.0", 1)), logger)
	test.That(t, errors.Is(err, ErrInvalidIntrinsics), test.ShouldBeTrue)

	// unknown extension
	_, err = LoadCalibration(writeCalFile(t, "rig.yaml", genericCalFixture), logger)
	test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)

	// missing file
	_, err = LoadCalibration(filepath.Join(t.TempDir(), "nope.txt"), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)
}

const vic3DCalFixture = `<?xml version="1.0"?>
<calibration>
	<CAMERA id="0" 320.0 240.0 500.0 505.0 0.1 0.001 0.0002 0.00003 orientation 0.0 0.0 0.0 0.0 0.0 0.0 />
	<CAMERA id="1" 330.0 250.0 510.0 515.0 -0.1 0.004 0.0005 0.00006 orientation 0.0 0.0 0.0 -100.0 0.0 5.0 />
</calibration>
`

func TestParseVic3DCalibration(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cal, err := LoadCalibration(writeCalFile(t, "rig.xml", vic3DCalFixture), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, cal.Intrinsics[0].Cx, test.ShouldEqual, 320.0)
	test.That(t, cal.Intrinsics[0].Fy, test.ShouldEqual, 505.0)
	test.That(t, cal.Intrinsics[1].Cy, test.ShouldEqual, 250.0)
	test.That(t, cal.Intrinsics[1].K1, test.ShouldEqual, 0.004)

	// camera 0's pose is the identity, so both derived transforms follow
	// directly from camera 1's pose
	matricesAlmostEqual(t, cal.CamToWorld, identityTransform(), 1e-12)
	matricesAlmostEqual(t, cal.CamToCam, CBAnglesToTransform(0, 0, 0, -100, 0, 5), 1e-12)
}

func TestParseVic3DCalibrationErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)

	// one camera record only
	lines := strings.Split(vic3DCalFixture, "\n")
	oneCamera := strings.Join(append(append([]string{}, lines[:3]...), lines[4:]...), "\n")
	_, err := LoadCalibration(writeCalFile(t, "rig.xml", oneCamera), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// three camera records
	extra := strings.Replace(vic3DCalFixture, "</calibration>", lines[3]+"\n</calibration>", 1)
	_, err = LoadCalibration(writeCalFile(t, "rig.xml", extra), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// record too short
	_, err = LoadCalibration(writeCalFile(t, "rig.xml", "<CAMERA id=\"0\" 1 2 3 />\n"), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)

	// non-numeric intrinsic
	bad := strings.Replace(vic3DCalFixture, "505.0", "bad", 1)
	_, err = LoadCalibration(writeCalFile(t, "rig.xml", bad), logger)
	test.That(t, errors.Is(err, ErrParse), test.ShouldBeTrue)
}

func TestCorrectRadialDistortion(t *testing.T) {
	cal := &Calibration{}
	cal.Intrinsics[0] = CameraIntrinsics{Cx: 320, Cy: 240, Fx: 500, Fy: 500}

	// zero coefficients leave the coordinate untouched
	x, y := cal.CorrectRadialDistortion(100, 200, 0)
	test.That(t, x, test.ShouldEqual, 100.0)
	test.That(t, y, test.ShouldEqual, 200.0)

	// the principal point itself never moves
	cal.Intrinsics[0].K1 = 0.05
	x, y = cal.CorrectRadialDistortion(320, 240, 0)
	test.That(t, x, test.ShouldEqual, 320.0)
	test.That(t, y, test.ShouldEqual, 240.0)

	// a point off center moves toward the principal point for positive k1
	x, y = cal.CorrectRadialDistortion(400, 240, 0)
	r1 := (400.0 - 320.0) / 320.0
	rho := r1 * r1
	test.That(t, x, test.ShouldAlmostEqual, 400-0.05*rho*r1*320, 1e-12)
	test.That(t, y, test.ShouldEqual, 240.0)
}

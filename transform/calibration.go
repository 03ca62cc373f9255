package transform

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Calibration owns the intrinsics of both cameras and the two rigid
// transforms of the rig: camera0->camera1 and camera0->world. A Calibration
// is immutable once built; reloading replaces the whole value atomically on
// the owning Triangulation.
type Calibration struct {
	Intrinsics [2]CameraIntrinsics
	// CamToCam maps camera-0-frame coordinates to the camera-1 frame.
	CamToCam *mat.Dense
	// CamToWorld maps camera-0-frame coordinates to world coordinates.
	// Defaults to the identity when the calibration file carries no custom
	// world transform.
	CamToWorld *mat.Dense
}

// LoadCalibration parses a calibration file, dispatching on the file
// extension: ".xml" for the legacy vic3d tag format, ".txt" for the generic
// flat format. Unknown extensions return ErrUnsupportedFormat.
func LoadCalibration(fn string, logger golog.Logger) (*Calibration, error) {
	logger.Debugf("parsing calibration parameters from %q", fn)
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, NewParseErrorf("cannot open calibration file %q", fn)
	}
	defer f.Close()

	var cal *Calibration
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".xml":
		cal, err = ParseVic3DCalibration(f)
	case ".txt":
		cal, err = ParseGenericCalibration(f)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "calibration file %q", fn)
	}
	if err != nil {
		return nil, err
	}
	for i := range cal.Intrinsics {
		if err := cal.Intrinsics[i].CheckValid(i); err != nil {
			return nil, err
		}
	}
	cal.debugLog(logger)
	return cal, nil
}

// ParseVic3DCalibration reads the legacy vic3d-style calibration format:
// whitespace/angle-bracket-delimited tokens, one CAMERA record per camera.
// Each record carries 8 intrinsic values at token offsets 2-9 and 6
// camera-to-world Cardan-Bryant pose values at offsets 11-16. Exactly two
// camera records are required. The format is tag soup rather than real XML,
// so the records are scanned line by line.
func ParseVic3DCalibration(r io.Reader) (*Calibration, error) {
	cal := &Calibration{CamToWorld: identityTransform()}
	poses := make([]*mat.Dense, 0, 2)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tokens := tokenizeLine(scanner.Text(), " \t<>")
		if len(tokens) == 0 || tokens[0] != "CAMERA" {
			continue
		}
		if len(poses) >= 2 {
			return nil, NewParseError("found more than 2 CAMERA records")
		}
		if len(tokens) <= 17 {
			return nil, NewParseErrorf("CAMERA record has %d tokens, need at least 18", len(tokens))
		}
		values := make([]float64, 0, 14)
		for _, idx := range [][2]int{{2, 9}, {11, 16}} {
			for i := idx[0]; i <= idx[1]; i++ {
				v, err := strconv.ParseFloat(tokens[i], 64)
				if err != nil {
					return nil, NewParseErrorf("bad numeric token %q in CAMERA record", tokens[i])
				}
				values = append(values, v)
			}
		}
		cameraIndex := len(poses)
		cal.Intrinsics[cameraIndex] = intrinsicsFromSlice(values[:8])
		pose := values[8:]
		poses = append(poses, CBAnglesToTransform(pose[0], pose[1], pose[2], pose[3], pose[4], pose[5]))
	}
	if err := scanner.Err(); err != nil {
		return nil, NewParseError(err.Error())
	}
	if len(poses) != 2 {
		return nil, NewParseErrorf("expected 2 CAMERA records, found %d", len(poses))
	}

	// the per-camera poses are world-to-camera style; camera0->world is the
	// inverse of camera 0's pose, and camera0->camera1 is T1 * T0^-1
	t0Inv, err := InvertTransform(poses[0])
	if err != nil {
		return nil, errors.Wrap(err, "cannot invert the transformation matrix from camera 0")
	}
	cal.CamToWorld = t0Inv
	cal.CamToCam = composeTransforms(poses[1], t0Inv)
	return cal, nil
}

// ParseGenericCalibration reads the flat text calibration format: one numeric
// value per line, '#' starting a comment (whole-line or trailing). The file
// must carry exactly 22 values (16 intrinsics + 6 camera0->camera1 pose
// values) or 28 (the same plus 6 pose values that are inverted into the
// camera0->world transform).
func ParseGenericCalibration(r io.Reader) (*Calibration, error) {
	const (
		numValuesExpected        = 22
		numValuesCustomTransform = 28
	)
	cal := &Calibration{CamToWorld: identityTransform()}
	intrinsics := make([]float64, 16)
	extrinsics := make([]float64, 6)
	transExtrinsics := make([]float64, 6)

	numValues := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tokens := tokenizeLine(scanner.Text(), " \t<>")
		if len(tokens) == 0 || tokens[0] == "#" {
			continue
		}
		if len(tokens) > 1 && tokens[1] != "#" {
			return nil, NewParseErrorf("expected one value per line plus comments, got %q", scanner.Text())
		}
		v, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return nil, NewParseErrorf("bad numeric token %q", tokens[0])
		}
		switch {
		case numValues < 16:
			intrinsics[numValues] = v
		case numValues < 22:
			extrinsics[numValues-16] = v
		case numValues < 28:
			transExtrinsics[numValues-22] = v
		}
		numValues++
	}
	if err := scanner.Err(); err != nil {
		return nil, NewParseError(err.Error())
	}
	if numValues != numValuesExpected && numValues != numValuesCustomTransform {
		return nil, NewParseErrorf("expected %d or %d values, found %d",
			numValuesExpected, numValuesCustomTransform, numValues)
	}

	cal.Intrinsics[0] = intrinsicsFromSlice(intrinsics[:8])
	cal.Intrinsics[1] = intrinsicsFromSlice(intrinsics[8:])
	cal.CamToCam = CBAnglesToTransform(
		extrinsics[0], extrinsics[1], extrinsics[2],
		extrinsics[3], extrinsics[4], extrinsics[5])

	if numValues == numValuesCustomTransform {
		pose := CBAnglesToTransform(
			transExtrinsics[0], transExtrinsics[1], transExtrinsics[2],
			transExtrinsics[3], transExtrinsics[4], transExtrinsics[5])
		inv, err := InvertTransform(pose)
		if err != nil {
			return nil, errors.Wrap(err, "cannot invert the custom world transform")
		}
		cal.CamToWorld = inv
	}
	return cal, nil
}

func intrinsicsFromSlice(v []float64) CameraIntrinsics {
	return CameraIntrinsics{
		Cx: v[0], Cy: v[1],
		Fx: v[2], Fy: v[3], Fs: v[4],
		K1: v[5], K2: v[6], K3: v[7],
	}
}

func tokenizeLine(line, delimiters string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	})
}

func (c *Calibration) debugLog(logger golog.Logger) {
	for i, ci := range c.Intrinsics {
		logger.Debugf("camera %d intrinsics: cx %v cy %v fx %v fy %v fs %v k1 %v k2 %v k3 %v",
			i, ci.Cx, ci.Cy, ci.Fx, ci.Fy, ci.Fs, ci.K1, ci.K2, ci.K3)
	}
	logger.Debugf("camera 0 to camera 1 transform:\n%v", mat.Formatted(c.CamToCam))
	logger.Debugf("camera 0 to world transform:\n%v", mat.Formatted(c.CamToWorld))
}

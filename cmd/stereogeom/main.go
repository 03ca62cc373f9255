// Stereo geometry command line tool: triangulate sensor coordinate pairs,
// forward-project 3D points, and estimate the projective transform between
// the two views of a calibrated rig.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/fieldcorr/stereogeom/rimage"
	"github.com/fieldcorr/stereogeom/transform"
)

const usage = `usage:
  stereogeom triangulate -cal <file> [-undistort] <x0> <y0> <x1> <y1>
  stereogeom triangulate -cal <file> [-undistort] <matched points file>
  stereogeom project -cal <file> <xc> <yc> <zc>
  stereogeom estimate [-points <file>] [-out <file>] [-dir <dir>] [-diagnostics] <left image> <right image>`

var logger = golog.NewDevelopmentLogger("stereogeom")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}

func realMain(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "triangulate":
		return triangulateMain(args[1:])
	case "project":
		return projectMain(args[1:])
	case "estimate":
		return estimateMain(args[1:])
	default:
		return errors.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, errors.Errorf("bad numeric argument %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func loadRig(calPath string) (*transform.Triangulation, error) {
	if calPath == "" {
		return nil, errors.New("a calibration file is required (-cal)")
	}
	tr := transform.NewTriangulation(logger)
	if err := tr.LoadCalibration(calPath); err != nil {
		return nil, err
	}
	return tr, nil
}

func triangulateMain(args []string) error {
	cmd := flag.NewFlagSet("triangulate", flag.ContinueOnError)
	calPath := cmd.String("cal", "", "calibration file (.xml or .txt)")
	undistort := cmd.Bool("undistort", false, "correct radial lens distortion first")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	tr, err := loadRig(*calPath)
	if err != nil {
		return err
	}
	switch cmd.NArg() {
	case 4:
		coords, err := parseFloats(cmd.Args())
		if err != nil {
			return err
		}
		return triangulateOne(tr, coords[0], coords[1], coords[2], coords[3], *undistort)
	case 1:
		//nolint:gosec
		f, err := os.Open(cmd.Arg(0))
		if err != nil {
			return errors.Wrapf(err, "cannot open matched points file %q", cmd.Arg(0))
		}
		defer f.Close()
		corrs, err := transform.ParseCorrespondences(f)
		if err != nil {
			return err
		}
		for _, c := range corrs {
			if err := triangulateOne(tr, c.Left.X, c.Left.Y, c.Right.X, c.Right.Y, *undistort); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("triangulate needs 4 sensor coordinates or a matched points file\n%s", usage)
	}
}

func triangulateOne(tr *transform.Triangulation, x0, y0, x1, y1 float64, undistort bool) error {
	cam, world, err := tr.Triangulate(x0, y0, x1, y1, undistort)
	if err != nil {
		return err
	}
	fmt.Printf("camera 0 frame: %v %v %v\n", cam.X, cam.Y, cam.Z)
	fmt.Printf("world frame:    %v %v %v\n", world.X, world.Y, world.Z)
	return nil
}

func projectMain(args []string) error {
	cmd := flag.NewFlagSet("project", flag.ContinueOnError)
	calPath := cmd.String("cal", "", "calibration file (.xml or .txt)")
	strict := cmd.Bool("strict", false, "fail on an out-of-tolerance homogeneous depth")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if cmd.NArg() != 3 {
		return errors.Errorf("project needs 3 camera-frame coordinates\n%s", usage)
	}
	coords, err := parseFloats(cmd.Args())
	if err != nil {
		return err
	}
	tr, err := loadRig(*calPath)
	if err != nil {
		return err
	}
	tr.StrictDepthCheck = *strict
	pt, err := tr.ProjectCameraToSensor1(coords[0], coords[1], coords[2])
	if err != nil {
		return err
	}
	fmt.Printf("camera 1 sensor: %v %v\n", pt.X, pt.Y)
	return nil
}

func estimateMain(args []string) error {
	cmd := flag.NewFlagSet("estimate", flag.ContinueOnError)
	pointsPath := cmd.String("points", transform.DefaultPointsPath, "point correspondence file")
	reportPath := cmd.String("out", transform.DefaultReportPath, "parameter report file")
	outputDir := cmd.String("dir", ".", "directory for diagnostic images")
	diagnostics := cmd.Bool("diagnostics", false, "write the resampled and difference images")
	maxIterations := cmd.Int("max-iterations", 0, "simplex iteration budget (0 for the default)")
	tolerance := cmd.Float64("tolerance", 0, "simplex convergence tolerance (0 for the default)")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if cmd.NArg() != 2 {
		return errors.Errorf("estimate needs a left and a right image\n%s", usage)
	}
	left, err := rimage.NewImageFromFile(cmd.Arg(0))
	if err != nil {
		return err
	}
	right, err := rimage.NewImageFromFile(cmd.Arg(1))
	if err != nil {
		return err
	}
	tr := transform.NewTriangulation(logger)
	params, err := tr.EstimateProjectiveTransform(left, right, transform.EstimateOptions{
		PointsPath:      *pointsPath,
		ReportPath:      *reportPath,
		OutputDir:       *outputDir,
		EmitDiagnostics: *diagnostics,
		MaxIterations:   *maxIterations,
		Tolerance:       *tolerance,
	})
	if err != nil {
		return err
	}
	fmt.Printf("projective transform: %v\n", params)
	return nil
}

package transform

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fieldcorr/stereogeom/rimage"
	"github.com/fieldcorr/stereogeom/utils"
)

const numProjectiveParams = 8

const (
	// DefaultPointsPath is where correspondences are read from when no
	// path is configured.
	DefaultPointsPath = "projection_points.dat"
	// DefaultReportPath is where the estimation report is written when no
	// path is configured.
	DefaultReportPath = "projection_out.dat"

	defaultMaxIterations = 200
	defaultTolerance     = 1e-5
	defaultSampleStride  = 4
)

// defaultSteps are the per-parameter initial step sizes for the refinement:
// translation-like terms move on a larger scale than the two denominator
// terms.
var defaultSteps = []float64{0.001, 0.001, 1.0, 0.001, 0.001, 1.0, 0.0001, 0.0001}

// Correspondence pairs a left-image sensor coordinate with its match in the
// right image.
type Correspondence struct {
	Left  r2.Point
	Right r2.Point
}

// ParseCorrespondences reads whitespace-delimited correspondences, four
// numeric fields per line (xl yl xr yr). Blank lines are skipped.
func ParseCorrespondences(r io.Reader) ([]Correspondence, error) {
	var out []Correspondence
	lineNum := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, NewParseErrorf("line %d: want 4 values per line (x_left y_left x_right y_right), found %d",
				lineNum, len(fields))
		}
		var vals [4]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, NewParseErrorf("line %d: bad numeric token %q", lineNum, f)
			}
			vals[i] = v
		}
		out = append(out, Correspondence{
			Left:  r2.Point{X: vals[0], Y: vals[1]},
			Right: r2.Point{X: vals[2], Y: vals[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, NewParseError(err.Error())
	}
	return out, nil
}

// EstimateOptions configures EstimateProjectiveTransform. The zero value
// selects the defaults.
type EstimateOptions struct {
	// PointsPath is the correspondence file to read.
	PointsPath string
	// ReportPath is where the human-readable parameter report is written.
	ReportPath string
	// EmitDiagnostics renders the resampled right image and the difference
	// image into OutputDir.
	EmitDiagnostics bool
	OutputDir       string
	// MaxIterations and Tolerance budget the refinement.
	MaxIterations int
	Tolerance     float64
	// Steps are per-parameter initial step sizes for the refinement.
	Steps []float64
	// SampleStride subsamples the intensity-mismatch objective grid.
	SampleStride int
	// Minimizer refines the closed-form estimate; defaults to Nelder-Mead.
	Minimizer Minimizer
}

func (o EstimateOptions) withDefaults() EstimateOptions {
	if o.PointsPath == "" {
		o.PointsPath = DefaultPointsPath
	}
	if o.ReportPath == "" {
		o.ReportPath = DefaultReportPath
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.Tolerance == 0 {
		o.Tolerance = defaultTolerance
	}
	if o.Steps == nil {
		o.Steps = defaultSteps
	}
	if o.SampleStride == 0 {
		o.SampleStride = defaultSampleStride
	}
	if o.Minimizer == nil {
		o.Minimizer = NelderMead{}
	}
	return o
}

// EstimateProjectiveTransform computes the 8-parameter planar homography
// mapping left-image sensor coordinates to right-image sensor coordinates.
// A closed-form direct-linear-transform estimate from the configured point
// correspondences is refined by minimizing the intensity mismatch between
// the left image and the right image resampled through the candidate
// transform. On success the refined coefficients are stored on the
// Triangulation and returned.
func (tr *Triangulation) EstimateProjectiveTransform(left, right *rimage.Image, opts EstimateOptions) ([]float64, error) {
	o := opts.withDefaults()

	//nolint:gosec
	f, err := os.Open(o.PointsPath)
	if err != nil {
		return nil, NewParseErrorf("cannot open correspondence file %q", o.PointsPath)
	}
	corrs, err := ParseCorrespondences(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	tr.logger.Debugf("estimate projective transform: found %d correspondences in %q", len(corrs), o.PointsPath)

	initial, err := EstimateProjectiveTransformDLT(corrs)
	if err != nil {
		return nil, err
	}
	tr.logger.Debugf("estimate projective transform: point-matching estimate %v", initial)
	if err := writeProjectionReport(o.ReportPath, "Projection parameters from point matching:", initial, -1); err != nil {
		return nil, err
	}

	objective := projectionMismatch(left, right, o.SampleStride)
	refined, iterations, err := o.Minimizer.Minimize(objective, initial, o.Steps, o.MaxIterations, o.Tolerance)
	if err != nil {
		return nil, errors.Wrap(ErrOptimization, err.Error())
	}
	tr.logger.Debugf("estimate projective transform: refined estimate %v after %d iterations", refined, iterations)
	if err := appendProjectionReport(o.ReportPath, "Projection parameters after simplex optimization:", refined, iterations); err != nil {
		return nil, err
	}

	if err := tr.SetProjectiveTransform(refined); err != nil {
		return nil, err
	}

	if o.EmitDiagnostics {
		if err := renderProjectionDiagnostics(left, right, refined, o.OutputDir); err != nil {
			return nil, err
		}
	}
	return tr.ProjectiveTransform(), nil
}

// EstimateProjectiveTransformDLT solves the direct linear transform for the
// 8 homography parameters from point correspondences. Each correspondence
// contributes two rows, so 4 points exactly determine the system; more
// points are fit in the least-squares sense through the normal equations.
func EstimateProjectiveTransformDLT(corrs []Correspondence) ([]float64, error) {
	n := len(corrs)
	if n < 4 {
		return nil, errors.Wrapf(ErrInsufficientData,
			"need at least 4 correspondences to estimate a projective transform, found %d", n)
	}
	k := mat.NewDense(2*n, numProjectiveParams, nil)
	u := mat.NewVecDense(2*n, nil)
	for i, c := range corrs {
		xl, yl := c.Left.X, c.Left.Y
		xr, yr := c.Right.X, c.Right.Y
		k.SetRow(2*i, []float64{xl, yl, 1, 0, 0, 0, -xl * xr, -yl * xr})
		k.SetRow(2*i+1, []float64{0, 0, 0, xl, yl, 1, -xl * yr, -yl * yr})
		u.SetVec(2*i, xr)
		u.SetVec(2*i+1, yr)
	}
	var ktk mat.Dense
	ktk.Mul(k.T(), k)
	ktkInv := mat.NewDense(numProjectiveParams, numProjectiveParams, nil)
	if err := invertSquare(ktkInv, &ktk); err != nil {
		return nil, errors.Wrap(err, "correspondence geometry is degenerate")
	}
	var ktu, coeffs mat.VecDense
	ktu.MulVec(k.T(), u)
	coeffs.MulVec(ktkInv, &ktu)

	out := make([]float64, numProjectiveParams)
	for i := range out {
		out[i] = coeffs.AtVec(i)
	}
	return out, nil
}

// projectionMismatch sums the absolute intensity difference between the left
// image and the right image resampled through the candidate transform, over
// a strided grid of the central 90% of the frame.
func projectionMismatch(left, right *rimage.Image, stride int) func([]float64) float64 {
	w, h := left.Width(), left.Height()
	xStart, xEnd := int(0.05*float64(w)), int(0.95*float64(w))
	yStart, yEnd := int(0.05*float64(h)), int(0.95*float64(h))
	return func(p []float64) float64 {
		var sum float64
		for j := yStart; j < yEnd; j += stride {
			for i := xStart; i < xEnd; i += stride {
				den := p[6]*float64(i) + p[7]*float64(j) + 1
				if den == 0 {
					return 1e300
				}
				xr := (p[0]*float64(i) + p[1]*float64(j) + p[2]) / den
				yr := (p[3]*float64(i) + p[4]*float64(j) + p[5]) / den
				d := left.GetXY(i, j) - right.InterpolateKeysFourth(xr, yr)
				if d < 0 {
					d = -d
				}
				sum += d
			}
		}
		return sum
	}
}

// renderProjectionDiagnostics writes the right image resampled into the left
// frame and the left-minus-resampled difference image. Only the central 90%
// of the frame is rendered, to stay clear of border artifacts. Each output
// pixel is independent, so the loop runs in parallel.
func renderProjectionDiagnostics(left, right *rimage.Image, p []float64, outputDir string) error {
	w, h := left.Width(), left.Height()
	resampled := rimage.NewImage(w, h)
	diff := rimage.NewImage(w, h)
	xStart, xEnd := int(0.05*float64(w)), int(0.95*float64(w))
	yStart, yEnd := int(0.05*float64(h)), int(0.95*float64(h))
	utils.ParallelForEachPixel(image.Point{X: w, Y: h}, func(x, y int) {
		if x < xStart || x >= xEnd || y < yStart || y >= yEnd {
			return
		}
		pt := applyProjective(p, float64(x), float64(y))
		v := right.InterpolateKeysFourth(pt.X, pt.Y)
		resampled.SetXY(x, y, v)
		diff.SetXY(x, y, left.GetXY(x, y)-v)
	})
	if err := resampled.WriteTo(filepath.Join(outputDir, "right_projected_to_left.tif")); err != nil {
		return err
	}
	return diff.WriteTo(filepath.Join(outputDir, "projection_diff.tif"))
}

func writeProjectionReport(path, header string, params []float64, iterations int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create report file %q", path)
	}
	defer f.Close()
	return printProjectionReport(f, header, params, iterations)
}

func appendProjectionReport(path, header string, params []float64, iterations int) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "cannot append to report file %q", path)
	}
	defer f.Close()
	return printProjectionReport(f, header, params, iterations)
}

func printProjectionReport(w io.Writer, header string, params []float64, iterations int) error {
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for _, v := range params {
		if _, err := fmt.Fprintf(w, "%e\n", v); err != nil {
			return err
		}
	}
	if iterations >= 0 {
		if _, err := fmt.Fprintf(w, "Optimization took %d iterations\n", iterations); err != nil {
			return err
		}
	}
	return nil
}

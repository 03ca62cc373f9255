package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// Minimizer refines a parameter vector against a scalar objective. steps
// gives the per-parameter initial step size. Implementations return the
// refined parameters and the number of major iterations used.
type Minimizer interface {
	Minimize(objective func([]float64) float64, initial, steps []float64,
		maxIterations int, tolerance float64) ([]float64, int, error)
}

// NelderMead is the derivative-free simplex minimizer. The objective here is
// an interpolated image mismatch with no usable analytic gradient, so a
// simplex search is the right tool.
type NelderMead struct{}

// Minimize runs the simplex search in step-scaled coordinates so each
// parameter moves on its own scale; gonum's NelderMead only takes a single
// simplex size.
func (NelderMead) Minimize(objective func([]float64) float64, initial, steps []float64,
	maxIterations int, tolerance float64,
) ([]float64, int, error) {
	if len(initial) != len(steps) {
		return nil, 0, errors.Errorf("got %d initial parameters but %d step sizes", len(initial), len(steps))
	}
	scaled := make([]float64, len(initial))
	for i, v := range initial {
		scaled[i] = v / steps[i]
	}
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			p := make([]float64, len(z))
			for i, v := range z {
				p[i] = v * steps[i]
			}
			return objective(p)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   tolerance,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, scaled, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, err
	}
	if err := result.Status.Err(); err != nil {
		return nil, 0, err
	}
	out := make([]float64, len(result.X))
	for i, v := range result.X {
		out[i] = v * steps[i]
	}
	return out, result.Stats.MajorIterations, nil
}

package transform

import "github.com/pkg/errors"

// Errors returned by the calibration, triangulation and estimation routines.
// All of them are terminal to the operation that raised them; nothing is
// retried internally.
var (
	// ErrParse is when a calibration or correspondence file is malformed or unreadable.
	ErrParse = errors.New("cannot parse input file")
	// ErrUnsupportedFormat is when a calibration file has an unrecognized extension.
	ErrUnsupportedFormat = errors.New("unsupported calibration file format")
	// ErrInvalidIntrinsics is when a camera's principal point is not strictly positive.
	ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")
	// ErrSingularMatrix is when a matrix inversion or least-squares solve hits a
	// non-invertible matrix (degenerate geometry).
	ErrSingularMatrix = errors.New("matrix is singular to working precision")
	// ErrInsufficientData is when fewer than the minimum number of point
	// correspondences are supplied.
	ErrInsufficientData = errors.New("not enough point correspondences")
	// ErrNotInitialized is when the projective transform is used before estimation.
	ErrNotInitialized = errors.New("projective transform has not been estimated")
	// ErrOptimization is when the nonlinear refinement fails to converge within budget.
	ErrOptimization = errors.New("projective transform refinement did not converge")
)

// NewParseError wraps ErrParse with a description of what was malformed.
func NewParseError(msg string) error {
	return errors.Wrap(ErrParse, msg)
}

// NewParseErrorf wraps ErrParse with a formatted description.
func NewParseErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrParse, format, args...)
}

// NewInvalidIntrinsicsError wraps ErrInvalidIntrinsics with a description of
// the offending parameter.
func NewInvalidIntrinsicsError(msg string) error {
	return errors.Wrap(ErrInvalidIntrinsics, msg)
}

package transform

import "fmt"

// CameraIntrinsics holds the internal parameters of one camera: principal
// point, focal lengths, skew, and the radial distortion coefficients. The
// field order matches the calibration file layout (cx cy fx fy fs k1 k2 k3).
type CameraIntrinsics struct {
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Fs float64 `json:"fs"`
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
}

// CheckValid checks that the principal point lies in a positive-coordinate
// sensor frame. The distortion correction divides by cx and cy, so
// non-positive values are rejected at load time.
func (ci *CameraIntrinsics) CheckValid(cameraID int) error {
	if ci.Cx <= 0 {
		return NewInvalidIntrinsicsError(fmt.Sprintf("invalid cx %v for camera %d", ci.Cx, cameraID))
	}
	if ci.Cy <= 0 {
		return NewInvalidIntrinsicsError(fmt.Sprintf("invalid cy %v for camera %d", ci.Cy, cameraID))
	}
	return nil
}

// CorrectRadialDistortion removes radial lens distortion from a sensor
// coordinate of the given camera. This is a single-pass polynomial
// approximation of the inverse distortion, exact only within the
// polynomial's validity range. With all coefficients zero it is the
// identity mapping.
func (c *Calibration) CorrectRadialDistortion(xs, ys float64, cameraID int) (float64, float64) {
	ci := &c.Intrinsics[cameraID]
	r1 := (xs - ci.Cx) / ci.Cx
	r2 := (ys - ci.Cy) / ci.Cy
	rhoTilde := r1*r1 + r2*r2
	factor := ci.K1*rhoTilde + ci.K2*rhoTilde*rhoTilde + ci.K3*rhoTilde*rhoTilde*rhoTilde
	return xs - factor*r1*ci.Cx, ys - factor*r2*ci.Cy
}

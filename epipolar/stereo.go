package epipolar

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PinholeCameraIntrinsics holds the calibrated pinhole parameters of a single
// camera.
type PinholeCameraIntrinsics struct {
	Fx  float64 `json:"fx"`
	Fy  float64 `json:"fy"`
	Ppx float64 `json:"ppx"`
	Ppy float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid
// inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return errors.New("camera intrinsic parameters are not available")
	}
	if params.Fx == 0 || params.Fy == 0 {
		return errors.Errorf("focal lengths must be non-zero, got fx=%v fy=%v", params.Fx, params.Fy)
	}
	return nil
}

// GetCameraMatrix returns the intrinsics as a 3x3 camera matrix K.
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// RectifiedStereoParams describes a calibrated, rectified stereo pair with
// identity relative rotation: shared intrinsics and the baseline offsets Tx,
// Ty of the second camera.
type RectifiedStereoParams struct {
	PinholeCameraIntrinsics
	Tx float64 `json:"tx"`
	Ty float64 `json:"ty"`
}

// FundamentalFromRectifiedStereo builds the fundamental matrix of a rectified
// stereo pair in closed form: the baseline skew matrix composes an essential
// matrix with the identity relative rotation, and F = K^-T * E * K^-1. No
// estimation is involved.
func FundamentalFromRectifiedStereo(params *RectifiedStereoParams) (*mat.Dense, error) {
	if params == nil {
		return nil, errors.New("stereo calibration parameters are not available")
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}

	bx := params.Tx / -params.Fx
	by := params.Ty / -params.Fy

	baselineSkew := mat.NewDense(3, 3, []float64{
		0, 0, by,
		0, 0, -bx,
		-by, bx, 0,
	})
	rot := eye(3)
	var essMat mat.Dense
	essMat.Mul(baselineSkew, rot)

	k := params.GetCameraMatrix()
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return nil, errors.Wrap(err, "camera matrix is singular")
	}

	var f mat.Dense
	f.Mul(transposeDense(&kInv), &essMat)
	f.Mul(&f, &kInv)
	return &f, nil
}

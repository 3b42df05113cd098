package epipolar

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EssentialFromFundamental returns the essential matrix from the fundamental
// matrix and the intrinsics of the two cameras, E = K2^T * F * K1, with
// rank 2 enforced.
func EssentialFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	if err := checkFundamentalDims(f); err != nil {
		return nil, err
	}
	if r, c := k1.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix k1 must be 3x3, got %dx%d", r, c)
	}
	if r, c := k2.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix k2 must be 3x3, got %dx%d", r, c)
	}
	var essMat, tmp mat.Dense
	tmp.Mul(transposeDense(k2), f)
	essMat.Mul(&tmp, k1)
	// enforce rank 2
	mats := performSVD(&essMat)
	if mats == nil {
		return nil, errors.New("failed to factorize essential matrix")
	}
	s := mats.S
	s.Set(2, 2, 0)
	essMat.Mul(mats.U, s)
	essMat.Mul(&essMat, mats.VT)
	return &essMat, nil
}

package epipolar

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and
// Translation matrices of the second camera, the first being held at [I|0].
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a camera pose from a 3x4 pose dense
// matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	col3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{col3.AtVec(0), col3.AtVec(1), col3.AtVec(2)})
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// identityProjection returns the reference camera matrix P0 = [I|0].
func identityProjection() *mat.Dense {
	p0 := mat.NewDense(3, 4, nil)
	p0.Set(0, 0, 1)
	p0.Set(1, 1, 1)
	p0.Set(2, 2, 1)
	return p0
}

// checkFundamentalDims returns an error unless f is 3x3.
func checkFundamentalDims(f *mat.Dense) error {
	if r, c := f.Dims(); r != 3 || c != 3 {
		return errors.Errorf("fundamental matrix must be 3x3, got %dx%d", r, c)
	}
	return nil
}

// EpipolesFromFundamental returns the epipoles of the two views encoded in
// the fundamental matrix: e1 in view 1 spans the right null space (last
// column of V), e2 in view 2 the left null space (last column of U).
func EpipolesFromFundamental(f *mat.Dense) (r3.Vector, r3.Vector, error) {
	if err := checkFundamentalDims(f); err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	mats := performSVD(f)
	if mats == nil {
		return r3.Vector{}, r3.Vector{}, errors.New("failed to factorize fundamental matrix")
	}
	e1 := r3.Vector{X: mats.V.At(0, 2), Y: mats.V.At(1, 2), Z: mats.V.At(2, 2)}
	e2 := r3.Vector{X: mats.U.At(0, 2), Y: mats.U.At(1, 2), Z: mats.U.At(2, 2)}
	return e1, e2, nil
}

// poseCandidate pairs one rotation hypothesis with one translation sign.
type poseCandidate struct {
	r *mat.Dense
	t *mat.Dense
}

// composeProjection builds the 3x4 matrix [R|t] from a candidate.
func (c poseCandidate) composeProjection() *mat.Dense {
	var p mat.Dense
	p.Augment(c.r, c.t)
	return mat.DenseCopyOf(&p)
}

// hasPositiveDepth triangulates the pair (x1, x2) with P0 and p and reports
// whether the reconstructed point lies in front of both cameras.
func hasPositiveDepth(p0, p *mat.Dense, x1, x2 r3.Vector) bool {
	x4d, err := IterativeLinearLSTriangulation(x1, p0, x2, p)
	if err != nil {
		return false
	}
	var xt1, xt2 mat.VecDense
	xt1.MulVec(p0, x4d)
	xt2.MulVec(p, x4d)
	return xt1.AtVec(2) > 0 && xt2.AtVec(2) > 0
}

// PoseFromFundamental recovers the projection matrix of the second camera
// from the fundamental matrix and one matched pair of homogeneous image
// points, holding the first camera at P0 = [I|0].
//
// The decomposition F = U*S*V^T yields two rotation hypotheses U*W*V^T and
// U*W^T*V^T and a translation known up to sign (the last column of U), hence
// four candidate poses. Candidates are evaluated in a fixed order and the
// first one placing the triangulated pair in front of both cameras wins. When
// none passes the depth check the last candidate is returned unvalidated;
// callers needing a guaranteed-valid pose must re-check cheirality themselves.
func PoseFromFundamental(f *mat.Dense, x1, x2 r3.Vector) (*CamPose, error) {
	if err := checkFundamentalDims(f); err != nil {
		return nil, err
	}
	mats := performSVD(f)
	if mats == nil {
		return nil, errors.New("failed to factorize fundamental matrix")
	}

	// canonical skew matrix W
	w := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	var r1, r2 mat.Dense
	r1.Mul(mats.U, w)
	r1.Mul(&r1, mats.VT)
	r2.Mul(mats.U, transposeDense(w))
	r2.Mul(&r2, mats.VT)

	e := mat.NewDense(3, 1, []float64{mats.U.At(0, 2), mats.U.At(1, 2), mats.U.At(2, 2)})
	var eNeg mat.Dense
	eNeg.Scale(-1, e)

	candidates := []poseCandidate{
		{&r1, e},
		{&r1, &eNeg},
		{&r2, e},
		{&r2, &eNeg},
	}
	p0 := identityProjection()
	var p *mat.Dense
	for _, candidate := range candidates {
		p = candidate.composeProjection()
		if hasPositiveDepth(p0, p, x1, x2) {
			break
		}
	}
	return NewCamPoseFromMat(p), nil
}

// RotationTranslationFromProjection extracts the rotation as the negative
// inverse of the leading 3x3 block of p and the translation as
// rotation * p[:,3].
func RotationTranslationFromProjection(p *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if r, c := p.Dims(); r != 3 || c != 4 {
		return nil, nil, errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	block := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	var rot mat.Dense
	if err := rot.Inverse(block); err != nil {
		return nil, nil, errors.Wrap(err, "leading 3x3 block of projection matrix is singular")
	}
	rot.Scale(-1, &rot)
	col3 := mat.NewDense(3, 1, []float64{p.At(0, 3), p.At(1, 3), p.At(2, 3)})
	var t mat.Dense
	t.Mul(&rot, col3)
	return &rot, &t, nil
}

package epipolar

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestEpipolesFromFundamental(t *testing.T) {
	// rectified stereo pair: both epipoles lie at infinity on the horizontal
	// axis
	params := &RectifiedStereoParams{
		PinholeCameraIntrinsics: *testIntrinsics(),
		Tx:                      0.1,
	}
	f, err := FundamentalFromRectifiedStereo(params)
	test.That(t, err, test.ShouldBeNil)

	e1, e2, err := EpipolesFromFundamental(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(e1.X), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, e1.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, e1.Z, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, math.Abs(e2.X), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, e2.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, e2.Z, test.ShouldAlmostEqual, 0, 1e-9)

	_, _, err = EpipolesFromFundamental(mat.NewDense(2, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)
}

// anyCandidatePasses replicates the four-candidate construction and reports
// whether at least one candidate places the pair in front of both cameras.
func anyCandidatePasses(f *mat.Dense, x1, x2 r3.Vector) bool {
	mats := performSVD(f)
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
	p0 := identityProjection()
	for _, candidate := range []poseCandidate{{&r1, e}, {&r1, &eNeg}, {&r2, e}, {&r2, &eNeg}} {
		if hasPositiveDepth(p0, candidate.composeProjection(), x1, x2) {
			return true
		}
	}
	return false
}

func TestPoseFromFundamental(t *testing.T) {
	groundTruths := []struct {
		rot *mat.Dense
		tr  r3.Vector
		pt  r3.Vector
	}{
		{rotationY(0.15), r3.Vector{X: -0.4, Y: 0, Z: 0.05}, r3.Vector{X: 0.3, Y: -0.2, Z: 5}},
		{rotationY(-0.08), r3.Vector{X: 0.5, Y: 0.1, Z: 0}, r3.Vector{X: -0.5, Y: 0.4, Z: 3}},
		{rotationZ(0.2), r3.Vector{X: 0.2, Y: -0.3, Z: 0.1}, r3.Vector{X: 0.1, Y: 0.1, Z: 6}},
		{rotationZ(-0.1), r3.Vector{X: -0.1, Y: 0.6, Z: -0.05}, r3.Vector{X: -0.2, Y: -0.4, Z: 4}},
	}
	for _, truth := range groundTruths {
		pose := composePose(truth.rot, truth.tr)
		essMat := essentialFrom(truth.rot, truth.tr)

		// normalized image coordinates of the pair in both cameras
		x1 := r3.Vector{X: truth.pt.X / truth.pt.Z, Y: truth.pt.Y / truth.pt.Z, Z: 1}
		img2 := projectPoint(pose, truth.pt)
		x2 := r3.Vector{X: img2.X, Y: img2.Y, Z: 1}

		// the pair satisfies the bilinear constraint
		x1v := mat.NewVecDense(3, []float64{x1.X, x1.Y, x1.Z})
		x2v := mat.NewVecDense(3, []float64{x2.X, x2.Y, x2.Z})
		var l mat.VecDense
		l.MulVec(essMat, x1v)
		test.That(t, mat.Dot(x2v, &l), test.ShouldAlmostEqual, 0, 1e-10)

		recovered, err := PoseFromFundamental(essMat, x1, x2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, recovered, test.ShouldNotBeNil)
		r, c := recovered.PoseMat.Dims()
		test.That(t, r, test.ShouldEqual, 3)
		test.That(t, c, test.ShouldEqual, 4)

		// whenever some candidate is physically valid, the returned pose must
		// put the pair in front of both cameras; otherwise the last candidate
		// is returned as a best effort
		if anyCandidatePasses(essMat, x1, x2) {
			ok := hasPositiveDepth(identityProjection(), recovered.PoseMat, x1, x2)
			test.That(t, ok, test.ShouldBeTrue)
		}
	}
}

func TestPoseFromFundamentalBadShape(t *testing.T) {
	_, err := PoseFromFundamental(mat.NewDense(3, 4, nil), r3.Vector{Z: 1}, r3.Vector{Z: 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewCamPoseFromMat(t *testing.T) {
	pose := composePose(rotationZ(0.3), r3.Vector{X: 1, Y: -2, Z: 0.5})
	camPose := NewCamPoseFromMat(pose)
	test.That(t, mat.EqualApprox(camPose.Rotation, rotationZ(0.3), 1e-12), test.ShouldBeTrue)
	test.That(t, camPose.Translation.At(0, 0), test.ShouldEqual, 1)
	test.That(t, camPose.Translation.At(1, 0), test.ShouldEqual, -2)
	test.That(t, camPose.Translation.At(2, 0), test.ShouldEqual, 0.5)
}

func TestRotationTranslationFromProjection(t *testing.T) {
	rot := rotationZ(0.3)
	tr := mat.NewDense(3, 1, []float64{1, -2, 0.5})

	// invert the extraction to build the projection matrix: the leading block
	// is -inv(r) and the fourth column inv(r)*t
	var rotInv mat.Dense
	err := rotInv.Inverse(rot)
	test.That(t, err, test.ShouldBeNil)
	var block mat.Dense
	block.Scale(-1, &rotInv)
	var col3 mat.Dense
	col3.Mul(&rotInv, tr)
	var p mat.Dense
	p.Augment(&block, &col3)

	gotRot, gotTr, err := RotationTranslationFromProjection(mat.DenseCopyOf(&p))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(gotRot, rot, 1e-10), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(gotTr, tr, 1e-10), test.ShouldBeTrue)

	_, _, err = RotationTranslationFromProjection(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)
}

// Package epipolar implements two-view epipolar geometry: robust fundamental
// matrix estimation, relative pose recovery, closed-form stereo calibration
// models, two-view triangulation and the epipolar consistency check used to
// verify a candidate link between two views.
//
// All matrices are value types scoped to a single call; the package keeps no
// state between invocations and is safe for concurrent use on independent
// inputs.
package epipolar

import (
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/naktamello/rtabmap/correspondence"
)

var logger = golog.NewLogger("epipolar")

const (
	// minFundamentalPairs is the minimal sample size of the eight-point
	// algorithm.
	minFundamentalPairs = 8
	// maxRansacIterations caps the consensus loop before the adaptive
	// confidence bound kicks in.
	maxRansacIterations = 1000
)

// ZeroFundamentalMatrix returns the all-zero 3x3 matrix that signals a failed
// estimation.
func ZeroFundamentalMatrix() *mat.Dense {
	return mat.NewDense(3, 3, nil)
}

// IsFundamentalValid reports whether f is a usable estimation result: a 3x3
// matrix with at least one non-zero entry.
func IsFundamentalValid(f *mat.Dense) bool {
	if f == nil {
		return false
	}
	if r, c := f.Dims(); r != 3 || c != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if f.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}

// normalizePoints normalizes points as described in Multiple View Geometry,
// Alg 11.1, and returns the transformed points with the 3x3 transform.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	// compute centroid of points
	mu := r2.Point{}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T
}

// eightPointFundamental fits a rank-2 fundamental matrix to at least 8
// correspondences with the (optionally normalized) eight-point algorithm.
func eightPointFundamental(pts1, pts2 []r2.Point, normalize bool) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < minFundamentalPairs {
		return nil, errors.Errorf("sets of points must have at least %d elements", minFundamentalPairs)
	}
	nPoints := len(pts1)

	var points1, points2 []r2.Point
	var T1, T2 *mat.Dense

	if normalize {
		points1, T1 = normalizePoints(pts1)
		points2, T2 = normalizePoints(pts2)
	} else {
		points1 = pts1
		points2 = pts2
		T1 = eye(3)
		T2 = eye(3)
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}

	mats1 := performSVD(m)
	if mats1 == nil {
		return nil, errors.New("failed to factorize correspondence system")
	}
	lastColV := mats1.V.ColView(8)

	// reshape into F
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, lastColVdata)

	// enforce rank 2 of F
	mats2 := performSVD(F)
	if mats2 == nil {
		return nil, errors.New("failed to factorize F")
	}
	S := mats2.S
	S.Set(2, 2, 0)

	// refined F: U@S@V2^T
	Fhat := mat.NewDense(3, 3, nil)
	Fhat.Mul(mats2.U, S)
	F.Mul(Fhat, mats2.VT)
	// rescale F: T2^T @ F @ T1
	F.Mul(transposeDense(T2), F)
	F.Mul(F, T1)

	if F.At(2, 2) != 0 {
		F.Scale(1/F.At(2, 2), F)
	}
	return F, nil
}

// epipolarDistance returns the larger of the two point-to-epipolar-line pixel
// distances induced by f on the pair (p1, p2).
func epipolarDistance(f *mat.Dense, p1, p2 r2.Point) float64 {
	p1h := mat.NewVecDense(3, []float64{p1.X, p1.Y, 1})
	p2h := mat.NewVecDense(3, []float64{p2.X, p2.Y, 1})
	var l2, l1 mat.VecDense
	l2.MulVec(f, p1h)
	l1.MulVec(f.T(), p2h)
	residual := math.Abs(mat.Dot(p2h, &l2))
	n2 := math.Hypot(l2.AtVec(0), l2.AtVec(1))
	n1 := math.Hypot(l1.AtVec(0), l1.AtVec(1))
	if n1 == 0 || n2 == 0 {
		return math.Inf(1)
	}
	d2 := residual / n2
	d1 := residual / n1
	return math.Max(d1, d2)
}

// EstimateFundamentalMatrixRANSAC robustly fits a fundamental matrix to two
// aligned point sets by sampling consensus over eight-point fits. threshold is
// the maximum pixel distance from the epipolar line for a pair to count as an
// inlier, confidence the desired probability of finding the right model.
//
// A failed estimation (fewer than 8 pairs, no consensus set) is signaled with
// the all-zero matrix and an all-false status slice, never an error.
func EstimateFundamentalMatrixRANSAC(pts1, pts2 []r2.Point, threshold, confidence float64) (*mat.Dense, []bool) {
	status := make([]bool, len(pts1))
	if len(pts1) != len(pts2) || len(pts1) < minFundamentalPairs {
		return ZeroFundamentalMatrix(), status
	}
	if threshold <= 0 {
		threshold = 3.0
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.99
	}

	r := rand.New(rand.NewSource(1))
	nPoints := len(pts1)
	bestInliers := 0
	var bestF *mat.Dense
	nIterations := maxRansacIterations
	sample1 := make([]r2.Point, minFundamentalPairs)
	sample2 := make([]r2.Point, minFundamentalPairs)
	for i := 0; i < nIterations; i++ {
		perm := r.Perm(nPoints)
		for j := 0; j < minFundamentalPairs; j++ {
			sample1[j] = pts1[perm[j]]
			sample2[j] = pts2[perm[j]]
		}
		f, err := eightPointFundamental(sample1, sample2, true)
		if err != nil {
			continue
		}
		inliers := 0
		for k := range pts1 {
			if epipolarDistance(f, pts1[k], pts2[k]) < threshold {
				inliers++
			}
		}
		if inliers <= bestInliers {
			continue
		}
		bestInliers = inliers
		bestF = f
		// nIter = log(1-p)/log(1-w^s), where p is the confidence, w the
		// inlier ratio and s the sample size.
		w := float64(inliers) / float64(nPoints)
		if denom := math.Log(1 - math.Pow(w, minFundamentalPairs)); denom < 0 {
			if n := int(math.Ceil(math.Log(1-confidence) / denom)); n < nIterations {
				nIterations = n
			}
		}
	}
	if bestF == nil || bestInliers < minFundamentalPairs {
		return ZeroFundamentalMatrix(), status
	}

	// refit on the consensus set of the best model
	in1 := make([]r2.Point, 0, bestInliers)
	in2 := make([]r2.Point, 0, bestInliers)
	for k := range pts1 {
		if epipolarDistance(bestF, pts1[k], pts2[k]) < threshold {
			in1 = append(in1, pts1[k])
			in2 = append(in2, pts2[k])
		}
	}
	if f, err := eightPointFundamental(in1, in2, true); err == nil {
		bestF = f
	}
	for k := range pts1 {
		status[k] = epipolarDistance(bestF, pts1[k], pts2[k]) < threshold
	}
	return bestF, status
}

// FindFundamentalFromPairs converts matched word pairs into two aligned point
// sets and estimates the fundamental matrix between the views. The returned
// status slice flags, pair by pair, membership in the consensus set. Callers
// must check the result with IsFundamentalValid; a degenerate estimation is a
// normal outcome, not an error.
func FindFundamentalFromPairs(pairs []correspondence.Pair, ransacThreshold, ransacConfidence float64) (*mat.Dense, []bool) {
	pts1 := make([]r2.Point, len(pairs))
	pts2 := make([]r2.Point, len(pairs))
	for i, pair := range pairs {
		pts1[i] = pair.A
		pts2[i] = pair.B
	}
	f, status := EstimateFundamentalMatrixRANSAC(pts1, pts2, ransacThreshold, ransacConfidence)
	if !IsFundamentalValid(f) {
		return ZeroFundamentalMatrix(), make([]bool, len(pairs))
	}
	logger.Debugf("F = %v", mat.Formatted(f, mat.Prefix("    ")))
	return f, status
}

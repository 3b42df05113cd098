package epipolar

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// From "Triangulation", Hartley, R.I. and Sturm, P., Computer Vision and
// Image Understanding, 1997.
const (
	triangulationMaxIterations = 10
	triangulationEpsilon       = 1e-4
)

// TriangulatedPoint is a reconstructed 3D point together with the pixel
// reprojection error of the correspondence that produced it.
type TriangulatedPoint struct {
	Point       r3.Vector
	ReprojError float64
}

// checkProjectionDims returns an error unless p is 3x4.
func checkProjectionDims(p *mat.Dense) error {
	if r, c := p.Dims(); r != 3 || c != 4 {
		return errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	return nil
}

// triangulationSystem builds the 4x3 system A*X = B from the two projection
// equations of each camera, with the rows of each camera scaled by 1/w and
// 1/w1 respectively.
func triangulationSystem(u r3.Vector, p *mat.Dense, u1 r3.Vector, p1 *mat.Dense, w, w1 float64) (*mat.Dense, *mat.VecDense) {
	a := mat.NewDense(4, 3, []float64{
		(u.X*p.At(2, 0) - p.At(0, 0)) / w, (u.X*p.At(2, 1) - p.At(0, 1)) / w, (u.X*p.At(2, 2) - p.At(0, 2)) / w,
		(u.Y*p.At(2, 0) - p.At(1, 0)) / w, (u.Y*p.At(2, 1) - p.At(1, 1)) / w, (u.Y*p.At(2, 2) - p.At(1, 2)) / w,
		(u1.X*p1.At(2, 0) - p1.At(0, 0)) / w1, (u1.X*p1.At(2, 1) - p1.At(0, 1)) / w1, (u1.X*p1.At(2, 2) - p1.At(0, 2)) / w1,
		(u1.Y*p1.At(2, 0) - p1.At(1, 0)) / w1, (u1.Y*p1.At(2, 1) - p1.At(1, 1)) / w1, (u1.Y*p1.At(2, 2) - p1.At(1, 2)) / w1,
	})
	b := mat.NewVecDense(4, []float64{
		-(u.X*p.At(2, 3) - p.At(0, 3)) / w,
		-(u.Y*p.At(2, 3) - p.At(1, 3)) / w,
		-(u1.X*p1.At(2, 3) - p1.At(0, 3)) / w1,
		-(u1.Y*p1.At(2, 3) - p1.At(1, 3)) / w1,
	})
	return a, b
}

// LinearLSTriangulation reconstructs a 3D point from one homogeneous image
// point per camera and the two 3x4 projection matrices, solving the direct
// linear transform system in the least-squares sense. The result is a
// homogeneous 4-vector with unit scale.
func LinearLSTriangulation(u r3.Vector, p *mat.Dense, u1 r3.Vector, p1 *mat.Dense) (*mat.VecDense, error) {
	if err := checkProjectionDims(p); err != nil {
		return nil, err
	}
	if err := checkProjectionDims(p1); err != nil {
		return nil, err
	}
	a, b := triangulationSystem(u, p, u1, p1, 1, 1)
	x, err := solveLeastSquaresSVD(a, b)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(4, []float64{x.AtVec(0), x.AtVec(1), x.AtVec(2), 1}), nil
}

// IterativeLinearLSTriangulation refines the linear solution by reweighting
// each camera's equations with the depth of the current estimate (Hartley &
// Sturm). Iteration stops once the weights settle within the tolerance; after
// the iteration cap the current estimate is returned as is.
func IterativeLinearLSTriangulation(u r3.Vector, p *mat.Dense, u1 r3.Vector, p1 *mat.Dense) (*mat.VecDense, error) {
	x, err := LinearLSTriangulation(u, p, u1, p1)
	if err != nil {
		return nil, err
	}
	wi, wi1 := 1.0, 1.0
	for i := 0; i < triangulationMaxIterations; i++ {
		// recalculate weights
		var px, p1x mat.VecDense
		px.MulVec(p, x)
		p1x.MulVec(p1, x)
		p2x := px.AtVec(2)
		p2x1 := p1x.AtVec(2)

		if math.Abs(wi-p2x) <= triangulationEpsilon && math.Abs(wi1-p2x1) <= triangulationEpsilon {
			break
		}
		wi = p2x
		wi1 = p2x1

		a, b := triangulationSystem(u, p, u1, p1, wi, wi1)
		sol, err := solveLeastSquaresSVD(a, b)
		if err != nil {
			break
		}
		x = mat.NewVecDense(4, []float64{sol.AtVec(0), sol.AtVec(1), sol.AtVec(2), 1})
	}
	return x, nil
}

// TriangulatePoints reconstructs one 3D point per correspondence with the
// iterative solver and returns the mean pixel reprojection error through the
// second camera as an overall fit-quality scalar. Per-point errors are the
// Euclidean distances between the reprojections and the observations in the
// second view.
func TriangulatePoints(pts1, pts2 []r2.Point, p, p1 *mat.Dense) ([]TriangulatedPoint, float64, error) {
	if len(pts1) != len(pts2) {
		return nil, 0, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if err := checkProjectionDims(p); err != nil {
		return nil, 0, err
	}
	if err := checkProjectionDims(p1); err != nil {
		return nil, 0, err
	}
	if len(pts1) == 0 {
		return nil, 0, nil
	}

	points := make([]TriangulatedPoint, len(pts1))
	reprojErrors := make([]float64, len(pts1))
	for i := range pts1 {
		u := r3.Vector{X: pts1[i].X, Y: pts1[i].Y, Z: 1}
		u1 := r3.Vector{X: pts2[i].X, Y: pts2[i].Y, Z: 1}
		x, err := IterativeLinearLSTriangulation(u, p, u1, p1)
		if err != nil {
			return nil, 0, err
		}
		var reproj mat.VecDense
		reproj.MulVec(p1, x)
		reprojPt := r2.Point{X: reproj.AtVec(0) / reproj.AtVec(2), Y: reproj.AtVec(1) / reproj.AtVec(2)}
		e := reprojPt.Sub(pts2[i]).Norm()
		points[i] = TriangulatedPoint{
			Point:       r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)},
			ReprojError: e,
		}
		reprojErrors[i] = e
	}
	return points, stat.Mean(reprojErrors, nil), nil
}

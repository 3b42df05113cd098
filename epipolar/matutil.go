package epipolar

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Convert2DPointsToHomogeneousPoints converts image coordinates to
// homogeneous coordinates with a unit third component.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// transposeDense returns the transpose of m as a new dense matrix.
func transposeDense(m *mat.Dense) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

// eye creates an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V
// from the decomposition. Returns nil if the factorization fails.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}

// solveLeastSquaresSVD solves the over-determined system a*x = b in the
// least-squares sense through singular value decomposition.
func solveLeastSquaresSVD(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize A")
	}
	// Determine the rank of the A matrix with a near zero condition threshold.
	const rcond = 1e-15
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, errors.New("zero rank system")
	}
	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	_, nCols := a.Dims()
	out := mat.NewVecDense(nCols, nil)
	for i := 0; i < nCols; i++ {
		out.SetVec(i, x.At(i, 0))
	}
	return out, nil
}

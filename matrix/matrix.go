package matrix

import (
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Eye returns n x n identity matrix
func Eye(n int) *mat.DiagDense {
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1.0)
	}

	return eye
}

// SolveSym solves a*x = b for x and stores the result in dst.
// a is factorized with Cholesky decomposition; if a is not positive definite
// it falls back to LU decomposition.
// It returns ErrNumericDegeneracy if a is singular or the solution is not finite.
func SolveSym(dst *mat.Dense, a mat.Symmetric, b mat.Matrix) error {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); ok {
		if err := chol.SolveTo(dst, b); err == nil && allFinite(dst) {
			return nil
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	if err := lu.SolveTo(dst, false, b); err != nil {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "singular matrix: %v", err)
	}

	if !allFinite(dst) {
		return errors.Wrap(filter.ErrNumericDegeneracy, "non-finite solution")
	}

	return nil
}

// Symmetrize stores (m + m')/2 in dst.
// It panics if m is not square or its size differs from dst.
func Symmetrize(dst *mat.SymDense, m mat.Matrix) {
	n := dst.SymmetricDim()
	if r, c := m.Dims(); r != n || c != n {
		panic(mat.ErrShape)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
}

// CheckCov checks that cov is a valid covariance matrix:
// all of its elements must be finite and its diagonal non-negative.
// It returns ErrNumericDegeneracy otherwise.
func CheckCov(cov mat.Symmetric) error {
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		if d := cov.At(i, i); d < 0 {
			return errors.Wrapf(filter.ErrNumericDegeneracy, "negative variance at %d: %g", i, d)
		}
		for j := i; j < n; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(filter.ErrNumericDegeneracy, "non-finite covariance at [%d, %d]", i, j)
			}
		}
	}

	return nil
}

// Finite returns true if all elements of v are finite numbers
func Finite(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if x := m.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}

	return true
}

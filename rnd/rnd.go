package rnd

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// The samples are drawn from src; if src is nil the global source is used.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm.Rand()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into the vector p.
// It fails with error if p is empty or its weights do not sum up to a positive number.
func RouletteDrawN(p []float64, n int, src rand.Source) ([]int, error) {
	cdf, err := cumulative(p)
	if err != nil {
		return nil, err
	}

	unit := distuv.Uniform{Min: 0, Max: 1, Src: src}

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = unit.Rand() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
		if indices[i] == len(cdf) {
			indices[i] = len(cdf) - 1
		}
	}

	return indices, nil
}

// SystematicDrawN draws n indices from a PMF defined by weights in p using systematic resampling.
// It draws a single uniform offset u in [0, 1/n) and selects the indices at positions
// u + i/n, i = 0..n-1, of the normalized cumulative distribution of p.
// It runs in O(len(p) + n) time and returns the indices in ascending order.
// It fails with error if p is empty or its weights do not sum up to a positive number.
func SystematicDrawN(p []float64, n int, src rand.Source) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	cdf, err := cumulative(p)
	if err != nil {
		return nil, err
	}
	total := cdf[len(cdf)-1]

	step := 1 / float64(n)
	offset := distuv.Uniform{Min: 0, Max: step, Src: src}
	u := offset.Rand()

	indices := make([]int, n)
	j := 0
	for i := range indices {
		pos := (u + float64(i)*step) * total
		for j < len(cdf)-1 && cdf[j] <= pos {
			j++
		}
		indices[i] = j
	}

	return indices, nil
}

func cumulative(p []float64) ([]float64, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	for i, w := range p {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid probability weight %d: %g", i, w)
		}
	}

	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	if cdf[len(cdf)-1] <= 0 {
		return nil, fmt.Errorf("probability weights sum to zero")
	}

	return cdf, nil
}

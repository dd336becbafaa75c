package linear

import (
	"fmt"
	"math"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure Regressor implements the interface.
var _ driven.Regressor = (*Regressor)(nil)

// ridge is a tiny diagonal regulariser that keeps the normal equations
// solvable when a resampled training set has collinear columns.
const ridge = 1e-8

// Regressor is an ordinary least-squares linear model with intercept.
type Regressor struct {
	weights []float64 // intercept first, then one weight per feature
	fitted  bool
}

// New creates an untrained least-squares regressor.
func New() *Regressor {
	return &Regressor{}
}

// Factory returns a driven.RegressorFactory producing fresh models.
func Factory() driven.RegressorFactory {
	return func() driven.Regressor { return New() }
}

// Fit solves the normal equations for X (with an intercept column) and y.
func (r *Regressor) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("%w: need matching non-empty X and y", domain.ErrInvalidInput)
	}
	cols := len(x[0]) + 1
	for _, row := range x {
		if len(row)+1 != cols {
			return fmt.Errorf("%w: ragged feature matrix", domain.ErrInvalidInput)
		}
	}

	// Accumulate XᵀX and Xᵀy with the implicit intercept column.
	xtx := make([][]float64, cols)
	for i := range xtx {
		xtx[i] = make([]float64, cols)
	}
	xty := make([]float64, cols)

	aug := make([]float64, cols)
	for k, row := range x {
		aug[0] = 1
		copy(aug[1:], row)
		for i := 0; i < cols; i++ {
			for j := i; j < cols; j++ {
				xtx[i][j] += aug[i] * aug[j]
			}
			xty[i] += aug[i] * y[k]
		}
	}
	for i := 0; i < cols; i++ {
		xtx[i][i] += ridge
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	weights, err := solve(xtx, xty)
	if err != nil {
		return err
	}
	r.weights = weights
	r.fitted = true
	return nil
}

// Predict applies the fitted model to each row of X.
func (r *Regressor) Predict(x [][]float64) ([]float64, error) {
	if !r.fitted {
		return nil, domain.ErrNotFitted
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(row)+1 != len(r.weights) {
			return nil, fmt.Errorf("%w: expected %d features, got %d",
				domain.ErrInvalidInput, len(r.weights)-1, len(row))
		}
		v := r.weights[0]
		for j, f := range row {
			v += r.weights[j+1] * f
		}
		out[i] = v
	}
	return out, nil
}

// solve performs Gaussian elimination with partial pivoting on a
// square system a·x = b, mutating its inputs.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("%w: singular design matrix", domain.ErrInvalidInput)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for j := col; j < n; j++ {
				a[row][j] -= factor * a[col][j]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for j := row + 1; j < n; j++ {
			sum -= a[row][j] * x[j]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// Package linear provides an ordinary least-squares regressor.
//
// It is the default committee member model: cheap to fit, deterministic
// and good enough to expose disagreement across resampled training
// sets. The solver works on the normal equations with partial-pivot
// Gaussian elimination.
package linear

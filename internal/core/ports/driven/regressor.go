package driven

// Regressor is a trainable regression model. The committee ensemble
// fits one fresh Regressor per member on an independent subsample.
type Regressor interface {
	// Fit trains the model on the feature matrix X and target vector y.
	Fit(x [][]float64, y []float64) error

	// Predict returns one predicted value per row of X.
	Predict(x [][]float64) ([]float64, error)
}

// RegressorFactory produces a fresh, untrained Regressor. Model
// parameters are carried by the closure, so strategy configuration
// stays with the code that constructs the factory.
type RegressorFactory func() Regressor

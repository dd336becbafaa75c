package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates invalid or missing campaign
	// initialization parameters. No partial state is created.
	ErrConfiguration = errors.New("invalid campaign configuration")

	// ErrNotInitialized indicates Run was called before Initialize.
	// This is a programmer error.
	ErrNotInitialized = errors.New("campaign not initialized")

	// ErrNotFitted indicates a model or committee was asked to predict
	// before being fit, or was fit with unusable training data.
	ErrNotFitted = errors.New("not fitted")

	// ErrAgent indicates the agent violated its selection contract.
	// The current iteration is aborted with no state mutation and is
	// safe to retry.
	ErrAgent = errors.New("agent contract violation")
)

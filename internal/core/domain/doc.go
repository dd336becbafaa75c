// Package domain defines the core business entities for Quarry.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Row: A uniquely keyed candidate with features and an optional label
//   - Dataset: An ordered, value-semantics collection of rows
//   - CampaignState: The persisted progress of an active-learning campaign
//   - IterationRecord: The durable record of one committed iteration
//   - Result: An experiment oracle's output for one candidate
//   - Summary: An analyzer's per-iteration report
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

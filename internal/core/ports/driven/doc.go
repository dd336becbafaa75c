// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and strategy/adapter packages
// implement them.
//
// # Required Interfaces
//
// These must be provided for a campaign to run:
//
//   - Agent: Selects which candidates to evaluate next
//   - Experiment: Evaluates selected candidates (the oracle)
//   - Analyzer: Scores the accumulated labeled dataset
//   - CampaignStore: Campaign state persistence (atomic snapshots)
//
// # Optional Interfaces
//
// These can be nil - the campaign degrades gracefully:
//
//   - IterationLedger: Queryable iteration history. Without it, history
//     lives only inside the campaign snapshot.
//
// The Regressor/RegressorFactory pair is consumed by the committee
// ensemble, not by the controller.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, agent, or experiment package
package driven

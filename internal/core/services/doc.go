// Package services implements the driving port interfaces.
// It contains the campaign loop controller and the committee
// uncertainty engine, orchestrating calls to driven ports
// (agents, experiments, analyzers, stores).
package services

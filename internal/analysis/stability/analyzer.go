// Package stability provides the threshold-based discovery analyzer.
//
// A labeled row counts as a discovery when its label is at or below a
// configured threshold. For formation-energy campaigns the label is a
// hull distance in eV/atom and the threshold marks (near-)stable
// compounds.
package stability

import (
	"context"
	"fmt"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure Analyzer implements the interface.
var _ driven.Analyzer = (*Analyzer)(nil)

// Analyzer counts discoveries against a label threshold.
type Analyzer struct {
	threshold float64
}

// New creates a stability analyzer with the given discovery threshold.
func New(threshold float64) *Analyzer {
	return &Analyzer{threshold: threshold}
}

// Analyze counts the labeled seed rows at or below the threshold.
// New discoveries are measured against the previous iteration's total,
// so a row only counts as new in the iteration that acquired it.
// Candidates are passed through unchanged.
func (a *Analyzer) Analyze(
	_ context.Context,
	seed, candidates domain.Dataset,
	history []domain.IterationRecord,
) (domain.Summary, domain.Dataset, error) {
	var labeled, stable int
	for _, row := range seed.Rows {
		if !row.Labeled {
			continue
		}
		labeled++
		if row.Label <= a.threshold {
			stable++
		}
	}

	previous := 0
	if len(history) > 0 {
		previous = history[len(history)-1].Summary.TotalDiscoveries
	}
	newDiscoveries := stable - previous
	if newDiscoveries < 0 {
		newDiscoveries = 0
	}

	summary := domain.Summary{
		NewDiscoveries:   newDiscoveries,
		TotalDiscoveries: stable,
		Notes: fmt.Sprintf("%d of %d labeled rows at or below %.4g",
			stable, labeled, a.threshold),
	}
	return summary, candidates, nil
}

// Package tabulated provides the after-the-fact lookup oracle.
//
// It "evaluates" candidates by looking their labels up in a reference
// dataset that was computed ahead of time. This is how simulated
// campaigns run: the pool ships with ground-truth labels, the campaign
// pretends not to know them, and the oracle reveals one batch per
// iteration.
package tabulated

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// Ensure Experiment implements the interface.
var _ driven.Experiment = (*Experiment)(nil)

// Experiment looks up labels in a precomputed reference dataset.
type Experiment struct {
	reference map[string]float64
}

// New creates a tabulated oracle backed by the labeled rows of the
// reference dataset. Unlabeled reference rows are ignored.
func New(reference domain.Dataset) *Experiment {
	labels := make(map[string]float64, reference.Len())
	for _, row := range reference.Rows {
		if row.Labeled {
			labels[row.Key] = row.Label
		}
	}
	return &Experiment{reference: labels}
}

// Evaluate resolves each row against the reference table. Rows missing
// from the table come back as per-candidate failures rather than
// aborting the batch.
func (e *Experiment) Evaluate(ctx context.Context, rows []domain.Row) (map[string]domain.Result, error) {
	results := make(map[string]domain.Result, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		label, ok := e.reference[row.Key]
		if !ok {
			logger.Warn("no tabulated label for candidate %q", row.Key)
			results[row.Key] = domain.Result{
				Key: row.Key,
				Err: "no tabulated label for candidate",
			}
			continue
		}
		results[row.Key] = domain.Result{Key: row.Key, Label: label}
	}
	return results, nil
}

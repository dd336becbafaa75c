package driven

import (
	"context"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
)

// IterationLedger records committed iterations for reporting and
// history queries. It is an optional, best-effort side channel: the
// campaign snapshot remains the authoritative state.
type IterationLedger interface {
	// Record logs one committed iteration.
	Record(ctx context.Context, rec domain.IterationRecord) error

	// History returns recent iteration records, most recent first.
	// A non-positive limit returns all records.
	History(ctx context.Context, limit int) ([]domain.IterationRecord, error)

	// Prune removes old records beyond the retention limit, keeping
	// the most recent 'keep' records.
	Prune(ctx context.Context, keep int) error
}

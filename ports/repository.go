package ports

import (
	"context"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
)

// ResultRepository persists completed analysis runs. Runs are written
// whole and read whole; partial updates are not part of the contract.
type ResultRepository interface {
	SaveRun(ctx context.Context, run *causal.AnalysisRun) error
	GetRun(ctx context.Context, id core.RunID) (*causal.AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]causal.RunSummary, error)
}

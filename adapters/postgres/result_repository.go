package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	apperrors "transitcausal/internal/errors"
	"transitcausal/ports"
)

// resultRepository implements the ResultRepository interface
type resultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new run result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &resultRepository{db: db}
}

// SaveRun writes the run and all its result families in one transaction.
func (r *resultRepository) SaveRun(ctx context.Context, run *causal.AnalysisRun) error {
	estimandsJSON, err := json.Marshal(run.Estimands)
	if err != nil {
		return fmt.Errorf("failed to marshal estimands: %w", err)
	}
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO analysis_runs (
		run_id, created_at, treatment, panel_hash, seed, estimands, warnings
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.CreatedAt.Time(), run.Treatment, run.PanelHash, run.Seed,
		estimandsJSON, warningsJSON,
	)
	if err != nil {
		return apperrors.WithCode(apperrors.CodeDatabaseError,
			fmt.Errorf("failed to insert run: %w", err))
	}

	for _, e := range run.Estimates {
		_, err = tx.ExecContext(ctx, `INSERT INTO effect_estimates (
			run_id, outcome, method, point, std_err, ci_lower, ci_upper, p_value, sample_size, low_power
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			run.ID, e.Outcome, e.Method, e.Point, e.StdErr, e.CILower, e.CIUpper,
			e.PValue, e.SampleSize, e.LowPower,
		)
		if err != nil {
			return apperrors.WithCode(apperrors.CodeDatabaseError,
				fmt.Errorf("failed to insert estimate: %w", err))
		}
	}

	for _, res := range run.Refutations {
		_, err = tx.ExecContext(ctx, `INSERT INTO refutation_results (
			run_id, outcome, test, method, original_estimate, refuted_estimate, relative_deviation, passed, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID, res.Outcome, res.Test, res.Method, res.OriginalEstimate,
			res.RefutedEstimate, res.RelativeDeviation, res.Passed, res.Detail,
		)
		if err != nil {
			return apperrors.WithCode(apperrors.CodeDatabaseError,
				fmt.Errorf("failed to insert refutation: %w", err))
		}
	}

	for _, c := range run.Counterfactuals {
		_, err = tx.ExecContext(ctx, `INSERT INTO counterfactual_outcomes (
			run_id, entity_id, scenario_name, outcome_name, baseline_value,
			counterfactual_value, absolute_impact, relative_impact, clamped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID, c.Entity, c.Scenario, c.Outcome, c.BaselineValue,
			c.CounterfactualValue, c.AbsoluteImpact, c.RelativeImpact, c.Clamped,
		)
		if err != nil {
			return apperrors.WithCode(apperrors.CodeDatabaseError,
				fmt.Errorf("failed to insert counterfactual: %w", err))
		}
	}

	for _, iv := range run.Intervals {
		_, err = tx.ExecContext(ctx, `INSERT INTO scenario_intervals (
			run_id, scenario_name, outcome_name, point, lower_bound, upper_bound, level, resamples
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID, iv.Scenario, iv.Outcome, iv.Point, iv.Lower, iv.Upper, iv.Level, iv.Resamples,
		)
		if err != nil {
			return apperrors.WithCode(apperrors.CodeDatabaseError,
				fmt.Errorf("failed to insert interval: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, "failed to commit run")
	}
	return nil
}

// GetRun retrieves a run with all its result families.
func (r *resultRepository) GetRun(ctx context.Context, id core.RunID) (*causal.AnalysisRun, error) {
	query := `SELECT run_id, created_at, treatment, panel_hash, seed, estimands, warnings
		FROM analysis_runs WHERE run_id = $1`

	var run causal.AnalysisRun
	var createdAt time.Time
	var estimandsJSON, warningsJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &createdAt, &run.Treatment, &run.PanelHash, &run.Seed,
		&estimandsJSON, &warningsJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("run %s", id))
		}
		return nil, apperrors.Wrap(err, "failed to get run")
	}
	run.CreatedAt = core.NewTimestamp(createdAt)
	if len(estimandsJSON) > 0 {
		if err := json.Unmarshal(estimandsJSON, &run.Estimands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal estimands: %w", err)
		}
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	if err := r.db.SelectContext(ctx, &run.Estimates, `SELECT
		outcome, method, point AS point_estimate, std_err AS std_error,
		ci_lower, ci_upper, p_value, sample_size, low_power
		FROM effect_estimates WHERE run_id = $1 ORDER BY outcome, method`, id); err != nil {
		return nil, apperrors.Wrap(err, "failed to load estimates")
	}
	if err := r.db.SelectContext(ctx, &run.Refutations, `SELECT
		outcome, test, method, original_estimate, refuted_estimate, relative_deviation, passed, detail
		FROM refutation_results WHERE run_id = $1 ORDER BY outcome, test`, id); err != nil {
		return nil, apperrors.Wrap(err, "failed to load refutations")
	}
	if err := r.db.SelectContext(ctx, &run.Counterfactuals, `SELECT
		entity_id, scenario_name, outcome_name, baseline_value,
		counterfactual_value, absolute_impact, relative_impact, clamped
		FROM counterfactual_outcomes WHERE run_id = $1
		ORDER BY scenario_name, entity_id, outcome_name`, id); err != nil {
		return nil, apperrors.Wrap(err, "failed to load counterfactuals")
	}
	if err := r.db.SelectContext(ctx, &run.Intervals, `SELECT
		scenario_name, outcome_name, point, lower_bound AS lower, upper_bound AS upper, level, resamples
		FROM scenario_intervals WHERE run_id = $1
		ORDER BY scenario_name, outcome_name`, id); err != nil {
		return nil, apperrors.Wrap(err, "failed to load intervals")
	}

	return &run, nil
}

// ListRuns returns the newest runs first.
func (r *resultRepository) ListRuns(ctx context.Context, limit int) ([]causal.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT
		r.run_id, r.created_at, r.treatment, r.panel_hash,
		COUNT(DISTINCT e.outcome) AS outcomes
		FROM analysis_runs r
		LEFT JOIN effect_estimates e ON e.run_id = r.run_id
		GROUP BY r.run_id, r.created_at, r.treatment, r.panel_hash
		ORDER BY r.created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var summaries []causal.RunSummary
	for rows.Next() {
		var s causal.RunSummary
		var createdAt time.Time
		if err := rows.Scan(&s.ID, &createdAt, &s.Treatment, &s.PanelHash, &s.Outcomes); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan run summary")
		}
		s.CreatedAt = core.NewTimestamp(createdAt)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

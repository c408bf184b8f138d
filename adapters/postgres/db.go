// Package postgres persists analysis runs in PostgreSQL.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"transitcausal/internal/errors"
)

// Connect opens and verifies a database connection.
func Connect(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id      TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	treatment   TEXT NOT NULL,
	panel_hash  TEXT NOT NULL,
	seed        BIGINT NOT NULL,
	estimands   JSONB NOT NULL DEFAULT '[]',
	warnings    JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS effect_estimates (
	run_id      TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	outcome     TEXT NOT NULL,
	method      TEXT NOT NULL,
	point       DOUBLE PRECISION NOT NULL,
	std_err     DOUBLE PRECISION NOT NULL,
	ci_lower    DOUBLE PRECISION NOT NULL,
	ci_upper    DOUBLE PRECISION NOT NULL,
	p_value     DOUBLE PRECISION NOT NULL,
	sample_size INTEGER NOT NULL,
	low_power   BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, outcome, method)
);

CREATE TABLE IF NOT EXISTS refutation_results (
	run_id             TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	outcome            TEXT NOT NULL,
	test               TEXT NOT NULL,
	method             TEXT NOT NULL,
	original_estimate  DOUBLE PRECISION NOT NULL,
	refuted_estimate   DOUBLE PRECISION NOT NULL,
	relative_deviation DOUBLE PRECISION NOT NULL,
	passed             BOOLEAN NOT NULL,
	detail             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, outcome, test)
);

CREATE TABLE IF NOT EXISTS counterfactual_outcomes (
	run_id               TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	entity_id            TEXT NOT NULL,
	scenario_name        TEXT NOT NULL,
	outcome_name         TEXT NOT NULL,
	baseline_value       DOUBLE PRECISION NOT NULL,
	counterfactual_value DOUBLE PRECISION NOT NULL,
	absolute_impact      DOUBLE PRECISION NOT NULL,
	relative_impact      DOUBLE PRECISION NOT NULL,
	clamped              BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, entity_id, scenario_name, outcome_name)
);

CREATE TABLE IF NOT EXISTS scenario_intervals (
	run_id        TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	scenario_name TEXT NOT NULL,
	outcome_name  TEXT NOT NULL,
	point         DOUBLE PRECISION NOT NULL,
	lower_bound   DOUBLE PRECISION NOT NULL,
	upper_bound   DOUBLE PRECISION NOT NULL,
	level         DOUBLE PRECISION NOT NULL,
	resamples     INTEGER NOT NULL,
	PRIMARY KEY (run_id, scenario_name, outcome_name)
);
`

// Migrate creates the result tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "schema migration failed")
	}
	return nil
}

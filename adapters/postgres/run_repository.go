// Package postgres stores batch trend runs in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cellfate/domain/core"
	"cellfate/internal"
	"cellfate/internal/batch"
	apperrors "cellfate/internal/errors"
)

var logger = internal.DefaultLogger.With("postgres")

const schema = `
CREATE TABLE IF NOT EXISTS trend_runs (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	n_genes    INTEGER NOT NULL,
	n_failed   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trend_results (
	run_id      TEXT NOT NULL REFERENCES trend_runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	gene        TEXT NOT NULL,
	lineage     TEXT NOT NULL,
	model       TEXT NOT NULL,
	x_test      DOUBLE PRECISION[],
	y_test      DOUBLE PRECISION[],
	lower       DOUBLE PRECISION[],
	upper       DOUBLE PRECISION[],
	duration_ns BIGINT NOT NULL,
	error       TEXT,
	PRIMARY KEY (run_id, position)
);`

// Connect opens and pings a PostgreSQL database.
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	if url == "" {
		return nil, apperrors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.ExternalDependency("postgres", err)
	}
	return db, nil
}

type resultRow struct {
	RunID      string          `db:"run_id"`
	Position   int             `db:"position"`
	Gene       string          `db:"gene"`
	Lineage    string          `db:"lineage"`
	Model      string          `db:"model"`
	XTest      pq.Float64Array `db:"x_test"`
	YTest      pq.Float64Array `db:"y_test"`
	Lower      pq.Float64Array `db:"lower"`
	Upper      pq.Float64Array `db:"upper"`
	DurationNs int64           `db:"duration_ns"`
	Error      sql.NullString  `db:"error"`
}

// RunRepository implements batch.Recorder for PostgreSQL
type RunRepository struct {
	db *sqlx.DB
}

var _ batch.Recorder = (*RunRepository)(nil)

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Migrate creates the run tables when missing.
func (r *RunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return apperrors.Wrap(err, "failed to create run tables")
	}
	return nil
}

// SaveRun stores a run and its per-gene results in one transaction.
func (r *RunRepository) SaveRun(ctx context.Context, run *batch.Run) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trend_runs (id, created_at, n_genes, n_failed)
		VALUES ($1, $2, $3, $4)
	`, run.ID.String(), run.CreatedAt, len(run.Results), run.Failed)
	if err != nil {
		return apperrors.Wrapf(err, "failed to insert run %s", run.ID)
	}

	for _, row := range toRows(run) {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO trend_results (run_id, position, gene, lineage, model, x_test, y_test, lower, upper, duration_ns, error)
			VALUES (:run_id, :position, :gene, :lineage, :model, :x_test, :y_test, :lower, :upper, :duration_ns, :error)
		`, row)
		if err != nil {
			return apperrors.Wrapf(err, "failed to insert result for gene %q", row.Gene)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, "failed to commit run")
	}
	logger.Debug("stored run %s with %d results", run.ID, len(run.Results))
	return nil
}

// GetRun loads a run with its results in gene order.
func (r *RunRepository) GetRun(ctx context.Context, id core.RunID) (*batch.Run, error) {
	var summary batch.Summary
	err := r.db.GetContext(ctx, &summary, `
		SELECT id, created_at, n_genes, n_failed
		FROM trend_runs
		WHERE id = $1
	`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(core.ErrNotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to load run %s", id)
	}

	var rows []resultRow
	err = r.db.SelectContext(ctx, &rows, `
		SELECT run_id, position, gene, lineage, model, x_test, y_test, lower, upper, duration_ns, error
		FROM trend_results
		WHERE run_id = $1
		ORDER BY position
	`, id.String())
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to load results of run %s", id)
	}

	run := fromRows(rows)
	run.ID, run.CreatedAt, run.Failed = summary.ID, summary.CreatedAt, summary.Failed
	return run, nil
}

// ListRuns returns the most recent runs first, optionally limited
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]batch.Summary, error) {
	query := `
		SELECT id, created_at, n_genes, n_failed
		FROM trend_runs
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var runs []batch.Summary
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

// DeleteRun removes a run and, through the foreign key, its results.
func (r *RunRepository) DeleteRun(ctx context.Context, id core.RunID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trend_runs WHERE id = $1`, id.String())
	if err != nil {
		return apperrors.Wrapf(err, "failed to delete run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound(core.ErrNotFound, "run %s not found", id)
	}
	return nil
}

func toRows(run *batch.Run) []resultRow {
	rows := make([]resultRow, len(run.Results))
	for i, res := range run.Results {
		row := resultRow{
			RunID:      run.ID.String(),
			Position:   i,
			Gene:       res.Gene,
			Lineage:    res.Lineage,
			Model:      res.Model,
			XTest:      pq.Float64Array(res.XTest),
			YTest:      pq.Float64Array(res.YTest),
			DurationNs: int64(res.Duration),
		}
		if res.ConfInt != nil {
			row.Lower = make(pq.Float64Array, len(res.ConfInt))
			row.Upper = make(pq.Float64Array, len(res.ConfInt))
			for k, b := range res.ConfInt {
				row.Lower[k], row.Upper[k] = b[0], b[1]
			}
		}
		if res.Err != nil {
			row.Error = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		rows[i] = row
	}
	return rows
}

// fromRows rebuilds results. Stored errors keep their message only.
func fromRows(rows []resultRow) *batch.Run {
	run := &batch.Run{Results: make([]batch.Result, len(rows))}
	for i, row := range rows {
		res := batch.Result{
			Gene:     row.Gene,
			Lineage:  row.Lineage,
			Model:    row.Model,
			XTest:    []float64(row.XTest),
			YTest:    []float64(row.YTest),
			Duration: time.Duration(row.DurationNs),
		}
		if len(row.Lower) > 0 && len(row.Lower) == len(row.Upper) {
			res.ConfInt = make([][2]float64, len(row.Lower))
			for k := range row.Lower {
				res.ConfInt[k] = [2]float64{row.Lower[k], row.Upper[k]}
			}
		}
		if row.Error.Valid {
			res.Err = apperrors.New(apperrors.CodeFitFailed, row.Error.String)
		}
		run.Results[i] = res
	}
	return run
}

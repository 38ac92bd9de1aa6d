package data

import (
	"database/sql"
	"errors"
	"fmt"

	"odbcref/internal/core"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Create stores the run and its statement results in one transaction.
func (r *RunRepo) Create(run *core.Run) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var apiKeyID sql.NullInt64
	if run.ApiKeyID != nil {
		apiKeyID = sql.NullInt64{Int64: *run.ApiKeyID, Valid: true}
	}
	var profileID sql.NullInt64
	if run.ProfileID != 0 {
		profileID = sql.NullInt64{Int64: run.ProfileID, Valid: true}
	}

	res, err := tx.Exec(`INSERT INTO runs (started_at, profile_id, driver, data_source, duration_ms, status, error_message, api_key_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), profileID, run.Driver, run.DataSource, run.DurationMs, run.Status, run.Error, apiKeyID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, st := range run.Statements {
		_, err := tx.Exec(`INSERT INTO run_statements (run_id, position, sql_text, rows_affected, duration_ms, status, error_message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, st.Position, st.SQL, st.RowsAffected, st.DurationMs, st.Status, st.Error)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

const runColumns = `id, started_at, profile_id, driver, data_source, duration_ms, status, error_message, api_key_id`

// GetRecent returns the latest runs without their statements, newest first.
func (r *RunRepo) GetRecent(limit int) ([]core.Run, error) {
	rows, err := r.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *RunRepo) GetByID(id int64) (*core.Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`SELECT position, sql_text, rows_affected, duration_ms, status, error_message FROM run_statements WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st core.StatementResult
		if err := rows.Scan(&st.Position, &st.SQL, &st.RowsAffected, &st.DurationMs, &st.Status, &st.Error); err != nil {
			return nil, err
		}
		run.Statements = append(run.Statements, st)
	}
	return run, rows.Err()
}

func scanRun(row scanner) (*core.Run, error) {
	var (
		run       core.Run
		profileID sql.NullInt64
		apiKeyID  sql.NullInt64
		errMsg    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &profileID, &run.Driver, &run.DataSource, &run.DurationMs, &run.Status, &errMsg, &apiKeyID); err != nil {
		return nil, err
	}
	run.ProfileID = profileID.Int64
	run.Error = errMsg.String
	if apiKeyID.Valid {
		run.ApiKeyID = &apiKeyID.Int64
	}
	// SQLite stores UTC
	run.StartedAt = run.StartedAt.Local()
	return &run, nil
}

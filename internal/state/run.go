package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/betric/simmer/pkg/models"
)

// PhaseOutcome represents how a single worker's execution ended.
type PhaseOutcome string

const (
	OutcomeSucceeded PhaseOutcome = "succeeded"
	OutcomeFailed    PhaseOutcome = "failed"
	OutcomeStopped   PhaseOutcome = "stopped"
)

// Run represents one simulation run.
type Run struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ConfigPath string           `json:"config_path"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at"`
	Status     models.RunStatus `json:"status"`
	Error      string           `json:"error"`
}

// PhaseResult represents the outcome of one worker within a run.
type PhaseResult struct {
	ID         int64            `json:"id"`
	RunID      string           `json:"run_id"`
	Phase      models.PhaseKind `json:"phase"`
	Work       models.WorkKind  `json:"work"`
	Outcome    PhaseOutcome     `json:"outcome"`
	Steps      int              `json:"steps"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at"`
	Error      string           `json:"error"`
}

// Run CRUD operations

// CreateRun records a new run.
func (db *DB) CreateRun(r *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, name, config_path, started_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.ConfigPath, formatTime(r.StartedAt), string(r.Status), r.Error)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, name, config_path, started_at, finished_at, status, error
		FROM runs WHERE id = ?
	`, id)

	var r Run
	var startedAt string
	var finishedAt, runErr sql.NullString
	err := row.Scan(&r.ID, &r.Name, &r.ConfigPath, &startedAt, &finishedAt, &r.Status, &runErr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	r.Error = runErr.String
	return &r, nil
}

// FinishRun records a run's final status.
func (db *DB) FinishRun(id string, status models.RunStatus, runErr string) error {
	_, err := db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?
	`, formatTime(time.Now()), string(status), runErr, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns lists the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, name, config_path, started_at, finished_at, status, error
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		var finishedAt, runErr sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.ConfigPath, &startedAt, &finishedAt, &r.Status, &runErr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = parseTime(startedAt)
		r.FinishedAt = parseNullableTime(finishedAt)
		r.Error = runErr.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PhaseResult operations

// RecordPhaseResult inserts a completed worker's outcome.
func (db *DB) RecordPhaseResult(pr *PhaseResult) error {
	var finishedAt any
	if pr.FinishedAt != nil {
		finishedAt = formatTime(*pr.FinishedAt)
	}
	result, err := db.Exec(`
		INSERT INTO phase_results (run_id, phase, work, outcome, steps, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, pr.RunID, string(pr.Phase), string(pr.Work), string(pr.Outcome), pr.Steps,
		formatTime(pr.StartedAt), finishedAt, pr.Error)
	if err != nil {
		return fmt.Errorf("record phase result: %w", err)
	}
	pr.ID, _ = result.LastInsertId()
	return nil
}

// ListPhaseResults lists a run's phase results in execution order.
func (db *DB) ListPhaseResults(runID string) ([]PhaseResult, error) {
	rows, err := db.Query(`
		SELECT id, run_id, phase, work, outcome, steps, started_at, finished_at, error
		FROM phase_results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list phase results: %w", err)
	}
	defer rows.Close()

	var results []PhaseResult
	for rows.Next() {
		var pr PhaseResult
		var startedAt string
		var finishedAt, prErr sql.NullString
		if err := rows.Scan(&pr.ID, &pr.RunID, &pr.Phase, &pr.Work, &pr.Outcome, &pr.Steps, &startedAt, &finishedAt, &prErr); err != nil {
			return nil, fmt.Errorf("scan phase result: %w", err)
		}
		pr.StartedAt, _ = parseTime(startedAt)
		pr.FinishedAt = parseNullableTime(finishedAt)
		pr.Error = prErr.String
		results = append(results, pr)
	}
	return results, rows.Err()
}

// HasSucceededModelling reports whether the given phase has any recorded
// successful modelling result. Used to decide whether exporting needs a
// forced modelling prerequisite.
func (db *DB) HasSucceededModelling(phase models.PhaseKind) (bool, error) {
	row := db.QueryRow(`
		SELECT COUNT(*) FROM phase_results
		WHERE phase = ? AND work = ? AND outcome = ?
	`, string(phase), string(models.WorkModelling), string(OutcomeSucceeded))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check modelling results: %w", err)
	}
	return count > 0, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one pipeline run
type Run struct {
	ID             string
	Mode           string
	TargetLanguage string
	InputRoot      string
	DocumentPath   string
	OutputDir      string
	Status         string
	ErrorMessage   string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// CreateRun inserts a new run in the running state
func (s *Store) CreateRun(run Run) error {
	_, err := s.conn.Exec(`
		INSERT INTO runs (id, mode, target_language, input_root, document_path, output_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.TargetLanguage, run.InputRoot, run.DocumentPath, run.OutputDir, RunRunning, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run
func (s *Store) FinishRun(id, status, errorMessage string) error {
	result, err := s.conn.Exec(`
		UPDATE runs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, status, nullable(errorMessage), time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, mode, COALESCE(target_language, ''), input_root, document_path, output_dir,
       status, COALESCE(error_message, ''), started_at, finished_at`

// GetRun retrieves a run by ID, nil when absent
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRunColumns(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run, nil when none exist
func (s *Store) LatestRun() (*Run, error) {
	row := s.conn.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`)

	run, err := scanRunColumns(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunColumns(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func scanRunColumns(scan func(...any) error) (*Run, error) {
	var r Run
	var finishedAt sql.NullTime

	err := scan(&r.ID, &r.Mode, &r.TargetLanguage, &r.InputRoot, &r.DocumentPath, &r.OutputDir,
		&r.Status, &r.ErrorMessage, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

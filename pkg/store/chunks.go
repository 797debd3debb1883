package store

import (
	"fmt"
	"strings"
	"time"
)

// ChunkRecord is the persisted state of one planned chunk
type ChunkRecord struct {
	RunID        string
	Idx          int
	Paths        []string
	EstSize      int
	Status       string
	Attempts     int
	ErrorMessage string
	Response     string
}

const pathSeparator = "\x1f"

// InsertChunks seeds the chunk queue for a run in a single transaction
func (s *Store) InsertChunks(runID string, chunks []ChunkRecord) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (run_id, idx, paths, est_size, status, attempts, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		paths := strings.Join(c.Paths, pathSeparator)
		if _, err := stmt.Exec(runID, c.Idx, paths, c.EstSize, ChunkPending, now); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk inserts: %w", err)
	}
	return nil
}

// MarkChunkProcessing transitions a chunk to the processing state
func (s *Store) MarkChunkProcessing(runID string, idx int) error {
	return s.updateChunk(runID, idx, `
		UPDATE chunks SET status = ?, updated_at = ? WHERE run_id = ? AND idx = ?
	`, ChunkProcessing, time.Now().UTC(), runID, idx)
}

// MarkChunkDone records a successful response for a chunk
func (s *Store) MarkChunkDone(runID string, idx, attempts int, response string) error {
	return s.updateChunk(runID, idx, `
		UPDATE chunks SET status = ?, attempts = ?, response = ?, error_message = NULL, updated_at = ?
		WHERE run_id = ? AND idx = ?
	`, ChunkDone, attempts, response, time.Now().UTC(), runID, idx)
}

// MarkChunkFailed records a terminal failure for a chunk
func (s *Store) MarkChunkFailed(runID string, idx, attempts int, errMsg string) error {
	return s.updateChunk(runID, idx, `
		UPDATE chunks SET status = ?, attempts = ?, error_message = ?, updated_at = ?
		WHERE run_id = ? AND idx = ?
	`, ChunkFailed, attempts, nullable(errMsg), time.Now().UTC(), runID, idx)
}

func (s *Store) updateChunk(runID string, idx int, query string, args ...any) error {
	result, err := s.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update chunk %d: %w", idx, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chunk not found: run %s idx %d", runID, idx)
	}
	return nil
}

// PendingChunks returns the indices of chunks still awaiting dispatch, in order
func (s *Store) PendingChunks(runID string) ([]int, error) {
	rows, err := s.conn.Query(`
		SELECT idx FROM chunks
		WHERE run_id = ? AND status IN (?, ?)
		ORDER BY idx
	`, runID, ChunkPending, ChunkFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending chunks: %w", err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan chunk index: %w", err)
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

// ChunkStates returns every chunk of a run in index order, responses included
func (s *Store) ChunkStates(runID string) ([]ChunkRecord, error) {
	rows, err := s.conn.Query(`
		SELECT idx, paths, est_size, status, attempts,
		       COALESCE(error_message, ''), COALESCE(response, '')
		FROM chunks WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk states: %w", err)
	}
	defer rows.Close()

	var records []ChunkRecord
	for rows.Next() {
		var rec ChunkRecord
		var paths string
		err := rows.Scan(&rec.Idx, &paths, &rec.EstSize, &rec.Status, &rec.Attempts,
			&rec.ErrorMessage, &rec.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk state: %w", err)
		}
		rec.RunID = runID
		if paths != "" {
			rec.Paths = strings.Split(paths, pathSeparator)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountChunksByStatus returns chunk counts keyed by status for a run
func (s *Store) CountChunksByStatus(runID string) (map[string]int, error) {
	rows, err := s.conn.Query(`
		SELECT status, COUNT(*) FROM chunks WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ResetStuckProcessing returns chunks left in processing by an interrupted
// run to the pending state so a resume can re-dispatch them
func (s *Store) ResetStuckProcessing(runID string) (int, error) {
	result, err := s.conn.Exec(`
		UPDATE chunks SET status = ?, updated_at = ?
		WHERE run_id = ? AND status = ?
	`, ChunkPending, time.Now().UTC(), runID, ChunkProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck chunks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// ManifestEntry records the outcome of one extracted file
type ManifestEntry struct {
	Path     string
	Status   string
	Reason   string
	ChunkIdx int
}

// AddManifestEntries appends extraction outcomes for a run in one transaction
func (s *Store) AddManifestEntries(runID string, entries []ManifestEntry) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO manifest (run_id, path, status, reason, chunk_idx)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			status = excluded.status, reason = excluded.reason, chunk_idx = excluded.chunk_idx
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare manifest insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(runID, e.Path, e.Status, nullable(e.Reason), e.ChunkIdx); err != nil {
			return fmt.Errorf("failed to insert manifest entry %q: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit manifest entries: %w", err)
	}
	return nil
}

// ManifestEntries returns the manifest for a run ordered by path
func (s *Store) ManifestEntries(runID string) ([]ManifestEntry, error) {
	rows, err := s.conn.Query(`
		SELECT path, status, COALESCE(reason, ''), chunk_idx
		FROM manifest WHERE run_id = ? ORDER BY path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest: %w", err)
	}
	defer rows.Close()

	var entries []ManifestEntry
	for rows.Next() {
		var e ManifestEntry
		if err := rows.Scan(&e.Path, &e.Status, &e.Reason, &e.ChunkIdx); err != nil {
			return nil, fmt.Errorf("failed to scan manifest entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

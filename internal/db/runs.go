package db

import (
	"fmt"
)

// IngestRun is one pipeline run's bookkeeping row. RunID is a UUID
// assigned when the pipeline starts.
type IngestRun struct {
	RunID           string   `json:"run_id"`
	StartedAt       float64  `json:"started_at"`
	FinishedAt      *float64 `json:"finished_at"`
	FramesIngested  int64    `json:"frames_ingested"`
	FramesUnknown   int64    `json:"frames_unknown"`
	FramesTruncated int64    `json:"frames_truncated"`
	Notes           *string  `json:"notes"`
}

// CreateIngestRun records the start of a pipeline run.
func (db *DB) CreateIngestRun(runID string, startedAt float64) error {
	_, err := db.Exec(
		"INSERT INTO ingest_runs (run_id, started_at) VALUES (?, ?)",
		runID, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest run: %w", err)
	}
	return nil
}

// UpdateIngestRunCounters writes the current drop counters for a run.
func (db *DB) UpdateIngestRunCounters(runID string, ingested, unknown, truncated int64) error {
	_, err := db.Exec(`
		UPDATE ingest_runs
		SET frames_ingested = ?, frames_unknown = ?, frames_truncated = ?
		WHERE run_id = ?
	`, ingested, unknown, truncated, runID)
	if err != nil {
		return fmt.Errorf("failed to update ingest run counters: %w", err)
	}
	return nil
}

// FinishIngestRun marks a run complete.
func (db *DB) FinishIngestRun(runID string, finishedAt float64) error {
	_, err := db.Exec(
		"UPDATE ingest_runs SET finished_at = ? WHERE run_id = ?",
		finishedAt, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish ingest run: %w", err)
	}
	return nil
}

// GetIngestRun returns one run's bookkeeping row.
func (db *DB) GetIngestRun(runID string) (*IngestRun, error) {
	var run IngestRun
	err := db.QueryRow(`
		SELECT run_id, started_at, finished_at,
			frames_ingested, frames_unknown, frames_truncated, notes
		FROM ingest_runs
		WHERE run_id = ?
	`, runID).Scan(
		&run.RunID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.FramesIngested,
		&run.FramesUnknown,
		&run.FramesTruncated,
		&run.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest run: %w", err)
	}
	return &run, nil
}

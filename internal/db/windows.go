package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/canbus.report/internal/quality"
)

// RecordQualityWindows inserts a batch of closed quality windows in
// one transaction. Re-inserting an already persisted window replaces
// it, so a replayed flush after a crash is harmless.
func (db *DB) RecordQualityWindows(windows []quality.Window) error {
	if len(windows) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO quality_windows (
			window_start, window_end, arbitration_id, message_name, channel,
			message_count, expected_count, expected_period_ms, missing_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare window insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range windows {
		if _, err := stmt.Exec(
			w.WindowStart,
			w.WindowEnd,
			w.ArbitrationID,
			w.MessageName,
			w.Channel,
			w.MessageCount,
			w.ExpectedCount,
			w.ExpectedPeriodMs,
			w.MissingRate,
		); err != nil {
			return fmt.Errorf("failed to insert quality window: %w", err)
		}
	}

	return tx.Commit()
}

// WindowQuery filters QualityWindowsByRange.
type WindowQuery struct {
	StartTime     float64
	EndTime       float64
	ArbitrationID uint32
	Limit         int
}

// QualityWindowsByRange returns quality windows ordered by window start.
func (db *DB) QualityWindowsByRange(q WindowQuery) ([]quality.Window, error) {
	query := `
		SELECT window_start, window_end, arbitration_id, message_name, channel,
			message_count, expected_count, expected_period_ms, missing_rate
		FROM quality_windows
		WHERE 1=1
	`
	var args []interface{}
	if q.StartTime > 0 {
		query += " AND window_start >= ?"
		args = append(args, q.StartTime)
	}
	if q.EndTime > 0 {
		query += " AND window_start < ?"
		args = append(args, q.EndTime)
	}
	if q.ArbitrationID != 0 {
		query += " AND arbitration_id = ?"
		args = append(args, q.ArbitrationID)
	}
	query += " ORDER BY window_start, arbitration_id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality windows: %w", err)
	}
	defer rows.Close()

	var out []quality.Window
	for rows.Next() {
		var w quality.Window
		if err := rows.Scan(
			&w.WindowStart,
			&w.WindowEnd,
			&w.ArbitrationID,
			&w.MessageName,
			&w.Channel,
			&w.MessageCount,
			&w.ExpectedCount,
			&w.ExpectedPeriodMs,
			&w.MissingRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quality window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// OverallHealth returns the fleet health score over the stored quality
// windows: the average of (1 - missing_rate) across all windows, and
// the number of windows it covers. Returns 0, 0 with no error when no
// windows have been recorded yet.
func (db *DB) OverallHealth() (score float64, windows int64, err error) {
	err = db.QueryRow(`
		SELECT COALESCE(AVG(1.0 - missing_rate), 0), COUNT(*)
		FROM quality_windows
	`).Scan(&score, &windows)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute overall health: %w", err)
	}
	if windows == 0 {
		return 0, 0, nil
	}
	return score, windows, nil
}

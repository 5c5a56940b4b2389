package db

import (
	"fmt"

	"github.com/banshee-data/canbus.report/internal/events"
)

// RecordEvents inserts a batch of driving events in one transaction.
func (db *DB) RecordEvents(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO events (
			timestamp, event_type, speed_kmh, acceleration_kmh_s,
			steering_angle, steering_angle_delta, brake_pressure, source_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range evs {
		if _, err := stmt.Exec(
			e.Timestamp,
			e.EventType,
			e.SpeedKmh,
			e.AccelerationKmhS,
			e.SteeringAngle,
			e.SteeringAngleDelta,
			e.BrakePressure,
			e.SourceID,
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

// EventQuery filters EventsByRange. An empty EventType matches all
// event types.
type EventQuery struct {
	StartTime float64
	EndTime   float64
	SourceID  string
	EventType string
	Limit     int
}

// EventsByRange returns driving events ordered by timestamp.
func (db *DB) EventsByRange(q EventQuery) ([]events.Event, error) {
	query := `
		SELECT timestamp, event_type, speed_kmh, acceleration_kmh_s,
			steering_angle, steering_angle_delta, brake_pressure, source_id
		FROM events
		WHERE 1=1
	`
	var args []interface{}
	if q.StartTime > 0 {
		query += " AND timestamp >= ?"
		args = append(args, q.StartTime)
	}
	if q.EndTime > 0 {
		query += " AND timestamp < ?"
		args = append(args, q.EndTime)
	}
	if q.SourceID != "" {
		query += " AND source_id = ?"
		args = append(args, q.SourceID)
	}
	if q.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, q.EventType)
	}
	query += " ORDER BY timestamp"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		if err := rows.Scan(
			&e.Timestamp,
			&e.EventType,
			&e.SpeedKmh,
			&e.AccelerationKmhS,
			&e.SteeringAngle,
			&e.SteeringAngleDelta,
			&e.BrakePressure,
			&e.SourceID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventCountsByType returns the number of stored events per type.
func (db *DB) EventCountsByType() (map[string]int64, error) {
	rows, err := db.Query(`
		SELECT event_type, COUNT(*)
		FROM events
		GROUP BY event_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

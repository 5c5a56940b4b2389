package db

import (
	"fmt"

	"github.com/banshee-data/canbus.report/internal/aggregate"
)

// RecordSamples inserts a batch of aggregated samples in one
// transaction. A sample for an already stored (source, bucket) pair
// merges per column: a bucket can straddle two flushes, and each flush
// emits only the fields it buffered, so non-null incoming fields win
// while null ones keep the stored value.
func (db *DB) RecordSamples(samples []aggregate.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO aggregated_samples (
			bucket_start, source_id,
			speed_kmh, rpm, throttle_pct, brake_pressure, brake_active, steering_angle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, bucket_start) DO UPDATE SET
			speed_kmh      = COALESCE(excluded.speed_kmh, speed_kmh),
			rpm            = COALESCE(excluded.rpm, rpm),
			throttle_pct   = COALESCE(excluded.throttle_pct, throttle_pct),
			brake_pressure = COALESCE(excluded.brake_pressure, brake_pressure),
			brake_active   = COALESCE(excluded.brake_active, brake_active),
			steering_angle = COALESCE(excluded.steering_angle, steering_angle)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		var brakeActive interface{}
		if s.BrakeActive != nil {
			v := 0
			if *s.BrakeActive {
				v = 1
			}
			brakeActive = v
		}
		if _, err := stmt.Exec(
			s.BucketStart,
			s.SourceID,
			s.SpeedKmh,
			s.RPM,
			s.ThrottlePct,
			s.BrakePressure,
			brakeActive,
			s.SteeringAngle,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	return tx.Commit()
}

// SampleQuery filters SamplesByRange.
type SampleQuery struct {
	StartTime float64
	EndTime   float64
	SourceID  string
	Limit     int
}

// SamplesByRange returns aggregated samples ordered by bucket start.
func (db *DB) SamplesByRange(q SampleQuery) ([]aggregate.Sample, error) {
	query := `
		SELECT bucket_start, source_id,
			speed_kmh, rpm, throttle_pct, brake_pressure, brake_active, steering_angle
		FROM aggregated_samples
		WHERE 1=1
	`
	var args []interface{}
	if q.StartTime > 0 {
		query += " AND bucket_start >= ?"
		args = append(args, q.StartTime)
	}
	if q.EndTime > 0 {
		query += " AND bucket_start < ?"
		args = append(args, q.EndTime)
	}
	if q.SourceID != "" {
		query += " AND source_id = ?"
		args = append(args, q.SourceID)
	}
	query += " ORDER BY bucket_start, source_id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// LatestSamples returns the most recent aggregated sample per source.
func (db *DB) LatestSamples() ([]aggregate.Sample, error) {
	rows, err := db.Query(`
		SELECT s.bucket_start, s.source_id,
			s.speed_kmh, s.rpm, s.throttle_pct, s.brake_pressure, s.brake_active, s.steering_angle
		FROM aggregated_samples s
		JOIN (
			SELECT source_id, MAX(bucket_start) AS max_bucket
			FROM aggregated_samples
			GROUP BY source_id
		) latest ON s.source_id = latest.source_id AND s.bucket_start = latest.max_bucket
		ORDER BY s.source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

type sampleRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSamples(rows sampleRows) ([]aggregate.Sample, error) {
	var out []aggregate.Sample
	for rows.Next() {
		var s aggregate.Sample
		var brakeActive *int
		if err := rows.Scan(
			&s.BucketStart,
			&s.SourceID,
			&s.SpeedKmh,
			&s.RPM,
			&s.ThrottlePct,
			&s.BrakePressure,
			&brakeActive,
			&s.SteeringAngle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		if brakeActive != nil {
			v := *brakeActive != 0
			s.BrakeActive = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

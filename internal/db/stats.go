package db

import (
	"fmt"

	"github.com/banshee-data/canbus.report/internal/stats"
)

// UpsertVehicleStats writes the current rollups. Each (date, source)
// row is replaced wholesale: the summarizer always carries the full
// accumulation for the run, so replacement keeps the table consistent
// across periodic flushes.
func (db *DB) UpsertVehicleStats(rollups []stats.DailyStats) error {
	if len(rollups) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO vehicle_stats (
			date, source_id, avg_speed_kmh, max_speed_kmh, avg_rpm, max_rpm,
			distance_km, sample_count, first_timestamp, last_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare stats upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range rollups {
		if _, err := stmt.Exec(
			st.Date,
			st.SourceID,
			st.AvgSpeedKmh,
			st.MaxSpeedKmh,
			st.AvgRPM,
			st.MaxRPM,
			st.DistanceKm,
			st.SampleCount,
			st.FirstTimestamp,
			st.LastTimestamp,
		); err != nil {
			return fmt.Errorf("failed to upsert vehicle stats: %w", err)
		}
	}

	return tx.Commit()
}

// StatsQuery filters VehicleStatsByRange. Dates are "YYYY-MM-DD"
// strings; empty strings mean unbounded.
type StatsQuery struct {
	StartDate string
	EndDate   string
	SourceID  string
}

// VehicleStatsByRange returns daily rollups ordered by (date, source).
func (db *DB) VehicleStatsByRange(q StatsQuery) ([]stats.DailyStats, error) {
	query := `
		SELECT date, source_id, avg_speed_kmh, max_speed_kmh, avg_rpm, max_rpm,
			distance_km, sample_count, first_timestamp, last_timestamp
		FROM vehicle_stats
		WHERE 1=1
	`
	var args []interface{}
	if q.StartDate != "" {
		query += " AND date >= ?"
		args = append(args, q.StartDate)
	}
	if q.EndDate != "" {
		query += " AND date <= ?"
		args = append(args, q.EndDate)
	}
	if q.SourceID != "" {
		query += " AND source_id = ?"
		args = append(args, q.SourceID)
	}
	query += " ORDER BY date, source_id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle stats: %w", err)
	}
	defer rows.Close()

	var out []stats.DailyStats
	for rows.Next() {
		var st stats.DailyStats
		if err := rows.Scan(
			&st.Date,
			&st.SourceID,
			&st.AvgSpeedKmh,
			&st.MaxSpeedKmh,
			&st.AvgRPM,
			&st.MaxRPM,
			&st.DistanceKm,
			&st.SampleCount,
			&st.FirstTimestamp,
			&st.LastTimestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// FleetSummary is the cross-source rollup served by the stats summary
// endpoint.
type FleetSummary struct {
	TotalDistanceKm  float64  `json:"total_distance_km"`
	TotalSamples     int64    `json:"total_samples"`
	MaxSpeedKmh      *float64 `json:"max_speed_kmh"`
	AvgSpeedKmh      *float64 `json:"avg_speed_kmh"`
	ActiveSources    int64    `json:"active_sources"`
	DaysWithActivity int64    `json:"days_with_activity"`
}

// VehicleStatsSummary aggregates the stored rollups across all dates
// and sources. The average speed is weighted by sample count.
func (db *DB) VehicleStatsSummary() (*FleetSummary, error) {
	var s FleetSummary
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(distance_km), 0),
			COALESCE(SUM(sample_count), 0),
			MAX(max_speed_kmh),
			CASE WHEN SUM(CASE WHEN avg_speed_kmh IS NOT NULL THEN sample_count ELSE 0 END) > 0
				THEN SUM(avg_speed_kmh * sample_count) / SUM(CASE WHEN avg_speed_kmh IS NOT NULL THEN sample_count ELSE 0 END)
				ELSE NULL END,
			COUNT(DISTINCT source_id),
			COUNT(DISTINCT date)
		FROM vehicle_stats
	`).Scan(
		&s.TotalDistanceKm,
		&s.TotalSamples,
		&s.MaxSpeedKmh,
		&s.AvgSpeedKmh,
		&s.ActiveSources,
		&s.DaysWithActivity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fleet summary: %w", err)
	}
	return &s, nil
}

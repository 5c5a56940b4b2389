package db

import (
	"fmt"
	"math"

	"github.com/banshee-data/canbus.report/internal/canbus"
)

// SignalRow is one persisted decoded signal. The dashboard fields are
// wide nullable columns so each message type fills only its own subset.
type SignalRow struct {
	ID            int64    `json:"id"`
	Timestamp     float64  `json:"timestamp"`
	ArbitrationID uint32   `json:"arbitration_id"`
	MessageName   string   `json:"message_name"`
	SourceID      string   `json:"source_id"`
	SpeedKmh      *float64 `json:"speed_kmh"`
	RPM           *float64 `json:"rpm"`
	ThrottlePct   *float64 `json:"throttle_pct"`
	BrakePressure *float64 `json:"brake_pressure"`
	BrakeActive   *bool    `json:"brake_active"`
	SteeringAngle *float64 `json:"steering_angle"`
}

// signalRowFromDecoded spreads a decoded signal's field maps into the
// wide column layout. Fields outside the known dashboard set are
// dropped at the persistence edge.
func signalRowFromDecoded(sig *canbus.DecodedSignal) SignalRow {
	row := SignalRow{
		Timestamp:     sig.Timestamp,
		ArbitrationID: sig.ArbitrationID,
		MessageName:   sig.MessageName,
		SourceID:      sig.SourceID,
	}
	if v, ok := sig.Fields["speed_kmh"]; ok {
		row.SpeedKmh = &v
	}
	if v, ok := sig.Fields["rpm"]; ok {
		row.RPM = &v
	}
	if v, ok := sig.Fields["throttle_pct"]; ok {
		row.ThrottlePct = &v
	}
	if v, ok := sig.Fields["brake_pressure"]; ok {
		row.BrakePressure = &v
	}
	if v, ok := sig.BoolFields["brake_active"]; ok {
		row.BrakeActive = &v
	}
	if v, ok := sig.Fields["steering_angle"]; ok {
		row.SteeringAngle = &v
	}
	return row
}

// RecordSignals inserts a batch of decoded signals in one transaction.
func (db *DB) RecordSignals(signals []canbus.DecodedSignal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO decoded_signals (
			timestamp, arbitration_id, message_name, source_id,
			speed_kmh, rpm, throttle_pct, brake_pressure, brake_active, steering_angle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare signal insert: %w", err)
	}
	defer stmt.Close()

	for i := range signals {
		row := signalRowFromDecoded(&signals[i])
		var brakeActive interface{}
		if row.BrakeActive != nil {
			v := 0
			if *row.BrakeActive {
				v = 1
			}
			brakeActive = v
		}
		if _, err := stmt.Exec(
			row.Timestamp,
			row.ArbitrationID,
			row.MessageName,
			row.SourceID,
			row.SpeedKmh,
			row.RPM,
			row.ThrottlePct,
			row.BrakePressure,
			brakeActive,
			row.SteeringAngle,
		); err != nil {
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}

	return tx.Commit()
}

// SignalQuery filters SignalsByRange. A zero StartTime/EndTime means
// unbounded on that side; an empty SourceID matches all sources.
type SignalQuery struct {
	StartTime float64
	EndTime   float64
	SourceID  string
	Limit     int
}

// SignalsByRange returns decoded signals ordered by timestamp.
func (db *DB) SignalsByRange(q SignalQuery) ([]SignalRow, error) {
	query := `
		SELECT id, timestamp, arbitration_id, message_name, source_id,
			speed_kmh, rpm, throttle_pct, brake_pressure, brake_active, steering_angle
		FROM decoded_signals
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
	query += " ORDER BY timestamp"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var r SignalRow
		var brakeActive *int
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.ArbitrationID,
			&r.MessageName,
			&r.SourceID,
			&r.SpeedKmh,
			&r.RPM,
			&r.ThrottlePct,
			&r.BrakePressure,
			&brakeActive,
			&r.SteeringAngle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		if brakeActive != nil {
			v := *brakeActive != 0
			r.BrakeActive = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Decoded converts a stored row back into the decoded-signal form the
// aggregator consumes. Only non-null columns become map entries, so a
// row round-trips to the field subset its message type populated.
func (r *SignalRow) Decoded() canbus.DecodedSignal {
	sig := canbus.DecodedSignal{
		Timestamp:     r.Timestamp,
		ArbitrationID: r.ArbitrationID,
		MessageName:   r.MessageName,
		SourceID:      r.SourceID,
		Fields:        make(map[string]float64),
	}
	if r.SpeedKmh != nil {
		sig.Fields["speed_kmh"] = *r.SpeedKmh
	}
	if r.RPM != nil {
		sig.Fields["rpm"] = *r.RPM
	}
	if r.ThrottlePct != nil {
		sig.Fields["throttle_pct"] = *r.ThrottlePct
	}
	if r.BrakePressure != nil {
		sig.Fields["brake_pressure"] = *r.BrakePressure
	}
	if r.SteeringAngle != nil {
		sig.Fields["steering_angle"] = *r.SteeringAngle
	}
	if r.BrakeActive != nil {
		sig.BoolFields = map[string]bool{"brake_active": *r.BrakeActive}
	}
	return sig
}

// LatestSignalBuckets returns, per source, every decoded signal whose
// timestamp falls in that source's newest bucketLen-aligned bucket. The
// caller re-aggregates the result at the same bucket length.
func (db *DB) LatestSignalBuckets(bucketLen float64) ([]canbus.DecodedSignal, error) {
	if bucketLen <= 0 {
		bucketLen = 1.0
	}

	rows, err := db.Query(`
		SELECT source_id, MAX(timestamp) FROM decoded_signals GROUP BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest timestamps: %w", err)
	}
	type cursor struct {
		source string
		maxTS  float64
	}
	var cursors []cursor
	for rows.Next() {
		var c cursor
		if err := rows.Scan(&c.source, &c.maxTS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan latest timestamp: %w", err)
		}
		cursors = append(cursors, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []canbus.DecodedSignal
	for _, c := range cursors {
		bucket := math.Floor(c.maxTS/bucketLen) * bucketLen
		sigRows, err := db.SignalsByRange(SignalQuery{
			StartTime: bucket,
			EndTime:   bucket + bucketLen,
			SourceID:  c.source,
		})
		if err != nil {
			return nil, err
		}
		for i := range sigRows {
			out = append(out, sigRows[i].Decoded())
		}
	}
	return out, nil
}

package db

import (
	"os"
	"testing"

	"github.com/banshee-data/canbus.report/internal/canbus"
)

// Helper functions for creating pointer values
func floatPtr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	if err := db.MigrateUpEmbedded(); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	fname := t.Name() + ".db"
	db.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}

// testSpeedSignal builds a decoded vehicle speed record for seeding.
func testSpeedSignal(ts float64, source string, speed float64) canbus.DecodedSignal {
	return canbus.DecodedSignal{
		Timestamp:     ts,
		ArbitrationID: 0x100,
		MessageName:   "VehicleSpeed",
		Fields:        map[string]float64{"speed_kmh": speed},
		SourceID:      source,
	}
}

// testBrakeSignal builds a decoded brake record for seeding.
func testBrakeSignal(ts float64, source string, pressure float64, active bool) canbus.DecodedSignal {
	return canbus.DecodedSignal{
		Timestamp:     ts,
		ArbitrationID: 0x102,
		MessageName:   "BrakeData",
		Fields:        map[string]float64{"brake_pressure": pressure},
		BoolFields:    map[string]bool{"brake_active": active},
		SourceID:      source,
	}
}

package main

import (
	"testing"

	"github.com/banshee-data/canbus.report/internal/config"
)

func TestLoadDictionaryEmbedded(t *testing.T) {
	dict := loadDictionary(config.EmptyTuningConfig())
	if dict.Len() == 0 {
		t.Fatal("embedded dictionary is empty")
	}
	if _, err := dict.Lookup(0x100); err != nil {
		t.Errorf("embedded dictionary missing VehicleSpeed: %v", err)
	}
}

func TestReplayRunFlag(t *testing.T) {
	if replayRun() {
		t.Error("replayRun should be false by default")
	}

	old := *replayFile
	*replayFile = "drive.log"
	defer func() { *replayFile = old }()

	if !replayRun() {
		t.Error("replayRun should be true with a replay file set")
	}
}

// Package capture provides replay frame sources for the telemetry pipeline:
// SocketCAN pcap files recorded with candump or tcpdump, and candump -L text
// logs used as dev-mode fixtures.
package capture

import (
	"github.com/banshee-data/canbus.report/internal/fsutil"
	"github.com/banshee-data/canbus.report/internal/timeutil"
)

// ReplayOptions controls how a recorded capture is fed into the pipeline.
type ReplayOptions struct {
	// SourceID is the vehicle or logger identity stamped on every frame.
	SourceID string

	// Channel is the bus name stamped on frames from formats that do not
	// record one, such as SocketCAN pcap files. Empty means "can0".
	Channel string

	// Pace replays frames with the inter-frame delays from the recording
	// instead of as fast as the pipeline can take them.
	Pace bool

	// Clock drives pacing delays. Nil means the real clock.
	Clock timeutil.Clock

	// FS is the filesystem captures are read from. Nil means the OS
	// filesystem; tests can substitute fsutil.MemoryFileSystem.
	FS fsutil.FileSystem
}

func (o ReplayOptions) clock() timeutil.Clock {
	if o.Clock == nil {
		return timeutil.RealClock{}
	}
	return o.Clock
}

func (o ReplayOptions) fs() fsutil.FileSystem {
	if o.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return o.FS
}

func (o ReplayOptions) channel() string {
	if o.Channel == "" {
		return "can0"
	}
	return o.Channel
}

package canmux

import (
	"context"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/pipeline"
	"github.com/banshee-data/canbus.report/internal/timeutil"
)

// StreamFrames subscribes to the mux and converts each SLCAN data frame line
// into a pipeline frame stamped with the receive time. Non-frame lines
// (status responses, command acks) are skipped; malformed frame lines are
// logged and skipped. The returned channel closes when the context is done
// or the mux shuts down.
func StreamFrames(ctx context.Context, m MuxInterface, channel, sourceID string, clock timeutil.Clock) <-chan pipeline.Frame {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	out := make(chan pipeline.Frame)
	id, lines := m.Subscribe()

	go func() {
		defer close(out)
		defer m.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				if ClassifyLine(line) != LineTypeFrame {
					continue
				}
				ts := float64(clock.Now().UnixNano()) / 1e9
				raw, err := canbus.ParseSLCANLine(line, ts, channel)
				if err != nil {
					monitoring.Logf("canmux: dropping malformed line %q: %v", line, err)
					continue
				}
				select {
				case out <- pipeline.Frame{Raw: raw, SourceID: sourceID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

package capture

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/pipeline"
)

// ReplayCandump opens a candump -L log file and streams its frames into the
// pipeline. Blank lines and comment lines starting with '#' are skipped;
// malformed lines are logged and skipped so a partly corrupt fixture still
// replays. The returned channel closes at end of file or when the context
// is done.
func ReplayCandump(ctx context.Context, path string, opts ReplayOptions) (<-chan pipeline.Frame, error) {
	f, err := opts.fs().Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}

	out := make(chan pipeline.Frame)
	go func() {
		defer close(out)
		defer f.Close()

		clock := opts.clock()
		scan := bufio.NewScanner(f)
		var lastTS float64
		haveLast := false

		for scan.Scan() {
			line := strings.TrimSpace(scan.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			raw, err := canbus.ParseCandumpLine(line)
			if err != nil {
				monitoring.Logf("capture: dropping malformed log line %q: %v", line, err)
				continue
			}

			if opts.Pace && haveLast {
				if delta := raw.Timestamp - lastTS; delta > 0 {
					select {
					case <-clock.After(time.Duration(delta * float64(time.Second))):
					case <-ctx.Done():
						return
					}
				}
			}
			lastTS = raw.Timestamp
			haveLast = true

			select {
			case out <- pipeline.Frame{Raw: raw, SourceID: opts.SourceID}:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			monitoring.Logf("capture: log read failed: %v", err)
		}
	}()
	return out, nil
}

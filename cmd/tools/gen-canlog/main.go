// Command gen-canlog generates synthetic candump -L driving logs, and
// optionally matching SocketCAN pcap captures, for dev-mode replay and
// testing. The scenario is a short drive: pull away, cruise, one hard
// brake, a sharp turn, then a stop.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/capture"
	"github.com/banshee-data/canbus.report/internal/security"
)

var (
	output   = flag.String("o", "fixtures/drive.log", "output candump log path")
	pcapOut  = flag.String("pcap", "", "also write a SocketCAN pcap capture to this path")
	duration = flag.Float64("duration", 60, "scenario length in seconds")
	channel  = flag.String("channel", "can0", "bus name written to the log")
	start    = flag.Float64("start", 1756400000, "unix timestamp of the first frame")
)

// putBigEndian packs raw into payload[offset:offset+width] most significant
// byte first, matching the dictionary's byte order.
func putBigEndian(payload []byte, offset, width int, raw uint64) {
	for i := width - 1; i >= 0; i-- {
		payload[offset+i] = byte(raw)
		raw >>= 8
	}
}

func speedFrame(ts float64, speedKmh float64) canbus.RawFrame {
	f := canbus.RawFrame{Timestamp: ts, Channel: *channel, ArbitrationID: 0x100, Length: 8}
	putBigEndian(f.Payload[:], 0, 2, uint64(math.Round(speedKmh/0.01)))
	return f
}

func engineFrame(ts float64, rpm, throttlePct float64) canbus.RawFrame {
	f := canbus.RawFrame{Timestamp: ts, Channel: *channel, ArbitrationID: 0x101, Length: 8}
	putBigEndian(f.Payload[:], 0, 2, uint64(math.Round(rpm/0.25)))
	putBigEndian(f.Payload[:], 2, 1, uint64(math.Round(throttlePct/0.4)))
	return f
}

func brakeFrame(ts float64, pressurePct float64, active bool) canbus.RawFrame {
	f := canbus.RawFrame{Timestamp: ts, Channel: *channel, ArbitrationID: 0x102, Length: 8}
	putBigEndian(f.Payload[:], 0, 1, uint64(math.Round(pressurePct/0.4)))
	if active {
		f.Payload[1] = 1
	}
	return f
}

func steeringFrame(ts float64, angleDeg float64) canbus.RawFrame {
	f := canbus.RawFrame{Timestamp: ts, Channel: *channel, ArbitrationID: 0x103, Length: 8}
	putBigEndian(f.Payload[:], 0, 2, uint64(math.Round((angleDeg+1080)/0.1)))
	return f
}

// scenario describes the vehicle state at t seconds into the drive.
func scenario(t, total float64) (speedKmh, throttlePct, brakePct, steeringDeg float64) {
	switch {
	case t < total*0.15:
		// pull away to 60 km/h
		speedKmh = 60 * t / (total * 0.15)
		throttlePct = 40
	case t < total*0.5:
		// cruise with gentle drift
		speedKmh = 60 + 5*math.Sin(t/3)
		throttlePct = 20
	case t < total*0.55:
		// hard brake: 60 -> 15 over 5% of the run
		progress := (t - total*0.5) / (total * 0.05)
		speedKmh = 60 - 45*progress
		brakePct = 80
	case t < total*0.7:
		// sharp right turn at low speed
		speedKmh = 15
		throttlePct = 10
		progress := (t - total*0.55) / (total * 0.15)
		steeringDeg = 90 * math.Sin(progress*math.Pi)
	case t < total*0.9:
		// accelerate back to 50 and cruise home
		progress := (t - total*0.7) / (total * 0.2)
		speedKmh = 15 + 35*progress
		throttlePct = 35
	default:
		// brake to a stop
		progress := (t - total*0.9) / (total * 0.1)
		speedKmh = 50 * (1 - progress)
		brakePct = 40
	}
	return speedKmh, throttlePct, brakePct, steeringDeg
}

func generate() []canbus.RawFrame {
	var frames []canbus.RawFrame

	// step at the fastest message period and emit each message type on its
	// own schedule
	const step = 0.01
	for t := 0.0; t < *duration; t += step {
		ts := *start + t
		tick := int(math.Round(t / step))
		speed, throttle, brake, steering := scenario(t, *duration)

		frames = append(frames, engineFrame(ts, 800+speed*45, throttle))
		if tick%2 == 0 {
			frames = append(frames, speedFrame(ts, speed))
			frames = append(frames, brakeFrame(ts, brake, brake > 0))
		}
		if tick%5 == 0 {
			frames = append(frames, steeringFrame(ts, steering))
		}
	}
	return frames
}

func writeLog(path string, frames []canbus.RawFrame) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, frame := range frames {
		fmt.Fprintln(w, canbus.FormatCandumpLine(frame))
	}
	return w.Flush()
}

func writePCAP(path string, frames []canbus.RawFrame) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := capture.NewPCAPWriter(f)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := w.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()

	frames := generate()

	if err := writeLog(*output, frames); err != nil {
		log.Fatalf("failed to write log: %v", err)
	}
	log.Printf("wrote %d frames to %s", len(frames), *output)

	if *pcapOut != "" {
		if err := writePCAP(*pcapOut, frames); err != nil {
			log.Fatalf("failed to write pcap: %v", err)
		}
		log.Printf("wrote pcap capture to %s", *pcapOut)
	}
}

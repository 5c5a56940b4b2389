package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/pipeline"
)

// LinkTypeSocketCAN is the pcap link type for SocketCAN captures
// (LINKTYPE_CAN_SOCKETCAN). gopacket's layers package predates its
// registration, so the value is spelled out here.
const LinkTypeSocketCAN layers.LinkType = 227

// socketCANRecordLen is the fixed on-disk record size: a 4 byte id+flags
// word, dlc, three reserved bytes, then an 8 byte payload slot.
const socketCANRecordLen = 16

const (
	canFlagExtended = 0x80000000
	canFlagRemote   = 0x40000000
	canFlagError    = 0x20000000
	canIDMask       = 0x1FFFFFFF
)

// ReplayPCAP opens a SocketCAN pcap file and streams its frames into the
// pipeline. Extended, remote, and error frames are skipped; standard data
// frames keep their capture timestamps. The returned channel closes at end
// of file or when the context is done.
func ReplayPCAP(ctx context.Context, path string, opts ReplayOptions) (<-chan pipeline.Frame, error) {
	f, err := opts.fs().Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", path, err)
	}
	if r.LinkType() != LinkTypeSocketCAN {
		f.Close()
		return nil, fmt.Errorf("capture %s has link type %d, want SocketCAN (%d)", path, r.LinkType(), LinkTypeSocketCAN)
	}

	out := make(chan pipeline.Frame)
	go func() {
		defer close(out)
		defer f.Close()
		replayPackets(ctx, r, opts, out)
	}()
	return out, nil
}

func replayPackets(ctx context.Context, r *pcapgo.Reader, opts ReplayOptions, out chan<- pipeline.Frame) {
	clock := opts.clock()
	var lastTS time.Time

	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			return
		}
		if err != nil {
			monitoring.Logf("capture: pcap read failed: %v", err)
			return
		}

		raw, ok := decodeSocketCANRecord(data, ci.Timestamp, opts.channel())
		if !ok {
			continue
		}

		if opts.Pace && !lastTS.IsZero() {
			if delay := ci.Timestamp.Sub(lastTS); delay > 0 {
				select {
				case <-clock.After(delay):
				case <-ctx.Done():
					return
				}
			}
		}
		lastTS = ci.Timestamp

		select {
		case out <- pipeline.Frame{Raw: raw, SourceID: opts.SourceID}:
		case <-ctx.Done():
			return
		}
	}
}

// decodeSocketCANRecord unpacks one LINKTYPE_CAN_SOCKETCAN record. The id
// word is big-endian on disk regardless of the capturing host.
func decodeSocketCANRecord(data []byte, ts time.Time, channel string) (canbus.RawFrame, bool) {
	var f canbus.RawFrame

	if len(data) < 8 {
		return f, false
	}
	idWord := binary.BigEndian.Uint32(data[0:4])
	if idWord&(canFlagExtended|canFlagRemote|canFlagError) != 0 {
		return f, false
	}

	length := data[4]
	if length > canbus.MaxPayloadLen {
		return f, false
	}
	if len(data) < 8+int(length) {
		return f, false
	}

	f.Timestamp = float64(ts.UnixNano()) / 1e9
	f.Channel = channel
	f.ArbitrationID = idWord & canIDMask
	f.Length = length
	copy(f.Payload[:], data[8:8+int(length)])
	return f, true
}

// PCAPWriter writes frames as a SocketCAN pcap capture. It exists for the
// fixture generator and tests; the daemon itself only reads captures.
type PCAPWriter struct {
	w *pcapgo.Writer
}

// NewPCAPWriter writes the pcap file header and returns a writer for
// appending frames.
func NewPCAPWriter(w io.Writer) (*PCAPWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(socketCANRecordLen, LinkTypeSocketCAN); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PCAPWriter{w: pw}, nil
}

// WriteFrame appends one standard data frame record.
func (p *PCAPWriter) WriteFrame(f canbus.RawFrame) error {
	record := make([]byte, socketCANRecordLen)
	binary.BigEndian.PutUint32(record[0:4], f.ArbitrationID&0x7FF)
	record[4] = f.Length
	copy(record[8:], f.Data())

	sec := int64(f.Timestamp)
	nsec := int64((f.Timestamp - float64(sec)) * 1e9)
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(sec, nsec).UTC(),
		CaptureLength: socketCANRecordLen,
		Length:        socketCANRecordLen,
	}
	return p.w.WritePacket(ci, record)
}

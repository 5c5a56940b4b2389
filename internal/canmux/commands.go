package canmux

import "strings"

// CommandBitrate is the SLCAN bitrate command sent during Initialize.
// S6 selects 500 kbit/s, the rate used on most powertrain buses.
const CommandBitrate = "S6"

const (
	LineTypeFrame         = "frame"
	LineTypeExtendedFrame = "extended_frame"
	LineTypeRemoteFrame   = "remote_frame"
	LineTypeStatus        = "status"
	LineTypeAck           = "ack"
	LineTypeUnknown       = "unknown"
)

// ClassifyLine inspects a line from the adapter and returns a simple token
// for the kind of traffic it carries. Only standard data frames ('t') are
// decodable; the other tokens exist so handlers can count and skip them.
func ClassifyLine(line string) string {
	if line == "" {
		return LineTypeUnknown
	}
	switch line[0] {
	case 't':
		return LineTypeFrame
	case 'T':
		return LineTypeExtendedFrame
	case 'r', 'R':
		return LineTypeRemoteFrame
	case 'F':
		return LineTypeStatus
	}
	// A bare CR from the adapter acknowledges the previous command; the
	// scanner delivers it as an empty token, handled above, but some
	// adapters answer with "z" or "Z".
	if line == "z" || line == "Z" {
		return LineTypeAck
	}
	return LineTypeUnknown
}

// allowedCommands is the set of SLCAN commands the admin interface may send.
// Anything that reconfigures acceptance filters or firmware is excluded.
var allowedCommands = []string{
	"O",                                                  // open the CAN channel
	"C",                                                  // close the CAN channel
	"F",                                                  // read status flags
	"V",                                                  // read hardware/firmware version
	"N",                                                  // read serial number
	"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", // bitrate presets
	"Z0", "Z1", // adapter timestamp off/on
}

// CommandAllowed reports whether the admin interface may send the command.
// Frame transmission ('t...') is never allowed from the debug UI; this
// pipeline is a passive listener on the bus.
func CommandAllowed(command string) bool {
	command = strings.TrimSpace(command)
	for _, allowed := range allowedCommands {
		if command == allowed {
			return true
		}
	}
	return false
}

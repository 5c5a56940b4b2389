// Package units provides shared constants and conversion helpers for
// speed units and report timezones.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from kilometers per hour to the target
// units. The database stores all speeds in km/h as decoded from the bus.
func ConvertSpeed(speedKmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKmh * 0.621371 // km/h to mph
	case MPS:
		return speedKmh / 3.6 // km/h to m/s
	case KMPH, KPH:
		return speedKmh // no conversion needed
	default:
		return speedKmh // default to km/h if unknown unit
	}
}

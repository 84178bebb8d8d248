package energy

// Unit conversions for reporting. Base units are what the tracker writes:
// watt-hours, milligrams CO2e (after the kg->mg normalization in
// BuildReport) and seconds.

// ConvertEnergy converts watt-hours to the requested unit.
func ConvertEnergy(wh float64, unit string) float64 {
	switch unit {
	case "kWh":
		return wh / 1000
	case "J":
		return wh * 3600
	case "kJ":
		return wh * 3.6
	default: // Wh
		return wh
	}
}

// ConvertEmissions converts milligrams CO2e to the requested unit.
func ConvertEmissions(mg float64, unit string) float64 {
	switch unit {
	case "g":
		return mg / 1e3
	case "kg":
		return mg / 1e6
	default: // mg
		return mg
	}
}

// ConvertDuration converts seconds to the requested unit.
func ConvertDuration(s float64, unit string) float64 {
	switch unit {
	case "ms":
		return s * 1000
	case "min":
		return s / 60
	default: // s
		return s
	}
}

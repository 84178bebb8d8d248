package config

import "fmt"

// Mode selects what the session measures and which tooling is injected
// into the framework container.
type Mode string

const (
	ModeProfile  Mode = "profile"
	ModeEnergy   Mode = "energy"
	ModeStandard Mode = "standard"
	ModeQuick    Mode = "quick"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeProfile, ModeEnergy, ModeStandard, ModeQuick:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected profile, energy, standard or quick)", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// ScriptDir is the wrk script subdirectory for a mode. Quick mode has no
// scripts of its own and reuses the profile set.
func (m Mode) ScriptDir() string {
	switch m {
	case ModeEnergy:
		return "energy"
	case ModeProfile, ModeQuick:
		return "profile"
	case ModeStandard:
		return "standard"
	default:
		return "profile"
	}
}

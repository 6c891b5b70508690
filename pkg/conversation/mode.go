package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-mantra/pkg/intent"
)

// Mode is the UI mode the assistant is in.
type Mode int

const (
	// ModeWelcome is the initial mode.
	ModeWelcome Mode = iota
	// ModeDirection shows a route to the destination.
	ModeDirection
	// ModeSurroundings streams obstacle detections.
	ModeSurroundings
	// ModeService lists transit services nearby.
	ModeService
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeWelcome:
		return "welcome"
	case ModeDirection:
		return "direction"
	case ModeSurroundings:
		return "surroundings"
	case ModeService:
		return "service"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a wire name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "welcome":
		return ModeWelcome, nil
	case "direction":
		return ModeDirection, nil
	case "surroundings":
		return ModeSurroundings, nil
	case "service":
		return ModeService, nil
	default:
		return 0, fmt.Errorf("conversation: unknown mode %q", s)
	}
}

// MarshalJSON encodes the mode by name.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a mode name.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ModeFor maps an intent to the mode it selects. Unknown selects nothing.
func ModeFor(t intent.Type) (Mode, bool) {
	switch t {
	case intent.AskingForDirection:
		return ModeDirection, true
	case intent.AnalyzingSurroundings:
		return ModeSurroundings, true
	case intent.ServiceRecommendation:
		return ModeService, true
	case intent.Unknown:
		return 0, false
	}
	return 0, false
}

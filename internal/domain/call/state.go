// Package call provides the call lifecycle domain types.
package call

import "github.com/cockroachdb/errors"

// State represents the call lifecycle phase.
type State int

const (
	StateDisconnected State = iota // No call, ready to start
	StateConnecting                // Conversation is being created
	StateActive                    // Conversation URL is available
	StateEnded                     // Call ended, waiting for reset
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ParseState parses the string representation of a state.
func ParseState(s string) (State, error) {
	switch s {
	case "disconnected":
		return StateDisconnected, nil
	case "connecting":
		return StateConnecting, nil
	case "active":
		return StateActive, nil
	case "ended":
		return StateEnded, nil
	default:
		return StateDisconnected, errors.Newf("unknown call state: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

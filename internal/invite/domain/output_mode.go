package domain

import "strings"

// OutputMode selects how a successful redemption is answered. Failures are
// always JSON.
type OutputMode int

const (
	OutputRedirect OutputMode = iota
	OutputJSON
)

func (m OutputMode) String() string {
	if m == OutputJSON {
		return "json"
	}
	return "redirect"
}

// ParseOutputMode reads the noRedirect flag.
func ParseOutputMode(raw string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "false", "no":
		return OutputRedirect, nil
	case "1", "true", "yes":
		return OutputJSON, nil
	default:
		return OutputRedirect, ErrInvalidOutputMode
	}
}

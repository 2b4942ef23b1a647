// Package mixertype parses the single configuration enum that crosses the
// stream core boundary: the output mixer type. It has no other relation to
// the stream core itself beyond being the "opaque configuration value"
// example mentioned alongside it.
package mixertype

import "strings"

// Type identifies how output volume is controlled.
type Type int

const (
	// Unknown means the configured string could not be parsed. It is
	// never a valid configured value.
	Unknown Type = iota

	// None means the mixer is disabled.
	None

	// Null is a virtual/fake mixer that accepts volume changes without
	// applying them to any real output.
	Null

	// Software applies volume in software (PCM scaling) before samples
	// reach the output.
	Software

	// Hardware delegates volume control to the output device itself.
	Hardware
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Null:
		return "null"
	case Software:
		return "software"
	case Hardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// Parse parses a configured mixer type string. It returns Unknown if input
// does not match any known variant.
func Parse(input string) Type {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "none":
		return None
	case "null":
		return Null
	case "software":
		return Software
	case "hardware":
		return Hardware
	default:
		return Unknown
	}
}

package dispatch

import (
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
)

// MacroSlots is the number of configurable macro buttons.
const MacroSlots = 9

// Options is the immutable configuration the dispatchers work with.
type Options struct {
	AxisLetters  string
	ProbeCommand string
	Macros       map[int]string // slot 1..9 -> G-code line

	DryRunButtons bool
	DryRunJog     bool
	DryRunProbe   bool
}

// DefaultOptions returns options with the stock axis table and nothing configured.
func DefaultOptions() Options {
	return Options{
		AxisLetters: pendant.DefaultAxisLetters,
		Macros:      map[int]string{},
	}
}

// DryRun reports whether commands from source are only logged.
func (o Options) DryRun(source types.CommandSource) bool {
	switch source {
	case types.SourceButton, types.SourceMacro:
		return o.DryRunButtons
	case types.SourceJog:
		return o.DryRunJog
	case types.SourceProbe:
		return o.DryRunProbe
	default:
		return false
	}
}

package dispatch

import (
	"strconv"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
)

// XHC-HB04 button codes
const (
	ButtonReset        uint8 = 1
	ButtonStop         uint8 = 2
	ButtonStartPause   uint8 = 3
	ButtonFeedPlus     uint8 = 4
	ButtonFeedMinus    uint8 = 5
	ButtonSpindlePlus  uint8 = 6
	ButtonSpindleMinus uint8 = 7
	ButtonMachineHome  uint8 = 8
	ButtonSafeZ        uint8 = 9
	ButtonWorkHome     uint8 = 10
	ButtonSpindleOnOff uint8 = 11
	ButtonFn           uint8 = pendant.ModifierButton
	ButtonProbeZ       uint8 = 13
	ButtonDisplayMode  uint8 = 16
)

// Grbl realtime override characters
const (
	rtFeedCoarsePlus     = 0x91
	rtFeedCoarseMinus    = 0x92
	rtFeedFinePlus       = 0x93
	rtFeedFineMinus      = 0x94
	rtSpindleCoarsePlus  = 0x9A
	rtSpindleCoarseMinus = 0x9B
	rtSpindleFinePlus    = 0x9C
	rtSpindleFineMinus   = 0x9D

	// feed knob positions below this select the fine override step
	fineOverrideKnobLimit = 16
)

// Grbl settings used by button actions
const (
	settingSafeZHeight = "$27"
	settingMaxRateZ    = "$112"
)

var (
	pauseAllowed     = machine.NewStateSet(machine.StateIdle, machine.StateRun, machine.StateJog)
	resumeAllowed    = machine.NewStateSet(machine.StateHold)
	homeAllowed      = machine.NewStateSet(machine.StateIdle, machine.StateCheck, machine.StateHome)
	workHomeAllowed  = machine.NewStateSet(machine.StateIdle, machine.StateCheck)
	spindleAllowed   = machine.NewStateSet(machine.StateIdle, machine.StateCheck)
	probeAllowed     = machine.NewStateSet(machine.StateIdle)
	macroSlotButtons = map[uint8]int{
		ButtonFeedPlus:     1,
		ButtonFeedMinus:    2,
		ButtonSpindlePlus:  3,
		ButtonSpindleMinus: 4,
		ButtonMachineHome:  5,
		ButtonSafeZ:        6,
		ButtonWorkHome:     7,
		ButtonSpindleOnOff: 8,
		ButtonProbeZ:       9,
	}
)

// Result collects what one report produced.
type Result struct {
	Commands       []types.Command
	Diagnostics    []error
	DisplayToggled bool
}

func (r *Result) command(c types.Command) {
	r.Commands = append(r.Commands, c)
}

func (r *Result) refuse(err error) {
	r.Diagnostics = append(r.Diagnostics, err)
}

// ButtonDispatcher turns newly pressed buttons into controller commands.
// It owns the previous button set used for edge detection.
type ButtonDispatcher struct {
	opts    Options
	display *pendant.DisplayMode
	prev    [2]uint8
}

func NewButtonDispatcher(opts Options, display *pendant.DisplayMode) *ButtonDispatcher {
	return &ButtonDispatcher{
		opts:    opts,
		display: display,
	}
}

// Previous returns the button set remembered from the last report.
func (d *ButtonDispatcher) Previous() [2]uint8 {
	return d.prev
}

// OnReport dispatches every button that went down since the previous report.
func (d *ButtonDispatcher) OnReport(in pendant.DecodedInput, snap machine.Snapshot) Result {
	var res Result

	if in.Axis == pendant.AxisOff {
		d.prev = [2]uint8{}
		return res
	}

	for _, code := range in.Buttons {
		if d.newlyPressed(code) {
			d.dispatch(code, in, snap, &res)
		}
	}

	d.prev = in.Buttons
	return res
}

// newlyPressed compares against the previous set, not the previous slot.
// Two held buttons swapping slots are therefore not seen as new presses.
func (d *ButtonDispatcher) newlyPressed(code uint8) bool {
	return code != 0 && code != d.prev[0] && code != d.prev[1]
}

func (d *ButtonDispatcher) dispatch(code uint8, in pendant.DecodedInput, snap machine.Snapshot, res *Result) {
	state := snap.State.ActiveState
	fn := in.ModifierHeld()

	switch code {
	case ButtonReset:
		res.command(types.NewLine(types.SourceButton, "$X"))

	case ButtonStop:
		res.command(types.NewLine(types.SourceButton, "!"))

	case ButtonStartPause:
		switch {
		case pauseAllowed.Contains(state):
			res.command(types.NewLine(types.SourceButton, "!"))
		case resumeAllowed.Contains(state):
			res.command(types.NewLine(types.SourceButton, "~"))
		default:
			res.refuse(&GateRefusal{Action: "toggle pause/run", State: state})
		}

	case ButtonFeedPlus, ButtonFeedMinus, ButtonSpindlePlus, ButtonSpindleMinus:
		if !fn {
			d.macro(code, res)
			return
		}
		res.command(types.NewLine(types.SourceButton, string(rune(overrideChar(code, in.FeedKnob)))))

	case ButtonMachineHome:
		if !fn {
			d.macro(code, res)
			return
		}
		if err := gate("home", homeAllowed, state); err != nil {
			res.refuse(err)
			return
		}
		res.command(types.NewLineCRLF(types.SourceButton, "$H"))

	case ButtonSafeZ:
		if !fn {
			d.macro(code, res)
			return
		}
		height, ok := snap.Settings.Lookup(settingSafeZHeight)
		if !ok {
			res.refuse(&MissingSetting{Action: "move to safe Z", Key: settingSafeZHeight})
			return
		}
		rate, ok := snap.Settings.Lookup(settingMaxRateZ)
		if !ok {
			res.refuse(&MissingSetting{Action: "move to safe Z", Key: settingMaxRateZ})
			return
		}
		res.command(types.NewLine(types.SourceButton,
			"$J=G53G21Z-"+formatSetting(height)+"F"+formatSetting(rate)))

	case ButtonWorkHome:
		if !fn {
			d.macro(code, res)
			return
		}
		if err := gate("set workpiece home", workHomeAllowed, state); err != nil {
			res.refuse(err)
			return
		}
		res.command(types.NewLine(types.SourceButton, "G10 P1 L20 X0 Y0 Z0"))

	case ButtonSpindleOnOff:
		if !fn {
			d.macro(code, res)
			return
		}
		if err := gate("toggle spindle", spindleAllowed, state); err != nil {
			res.refuse(err)
			return
		}
		if snap.State.SpindleSpeed > 0 {
			res.command(types.NewLine(types.SourceButton, "M5"))
		} else {
			res.command(types.NewLine(types.SourceButton, "M3"))
		}

	case ButtonProbeZ:
		if !fn {
			d.macro(code, res)
			return
		}
		if err := gate("probe", probeAllowed, state); err != nil {
			res.refuse(err)
			return
		}
		if d.opts.ProbeCommand == "" {
			res.refuse(&Unassigned{Action: "probe macro"})
			return
		}
		res.command(types.NewLine(types.SourceProbe, d.opts.ProbeCommand))

	case ButtonDisplayMode:
		d.display.Toggle()
		res.DisplayToggled = true
	}
}

func (d *ButtonDispatcher) macro(code uint8, res *Result) {
	slot := macroSlotButtons[code]
	text, ok := d.opts.Macros[slot]
	if !ok || text == "" {
		res.refuse(&Unassigned{Action: "macro " + strconv.Itoa(slot)})
		return
	}
	res.command(types.NewLine(types.SourceMacro, text))
}

func overrideChar(code uint8, feedKnob uint8) int {
	fine := feedKnob < fineOverrideKnobLimit

	switch code {
	case ButtonFeedPlus:
		if fine {
			return rtFeedFinePlus
		}
		return rtFeedCoarsePlus
	case ButtonFeedMinus:
		if fine {
			return rtFeedFineMinus
		}
		return rtFeedCoarseMinus
	case ButtonSpindlePlus:
		if fine {
			return rtSpindleFinePlus
		}
		return rtSpindleCoarsePlus
	default:
		if fine {
			return rtSpindleFineMinus
		}
		return rtSpindleCoarseMinus
	}
}

func formatSetting(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

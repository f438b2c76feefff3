package dispatch

import (
	"errors"
	"testing"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(b1, b2 uint8) pendant.DecodedInput {
	return pendant.DecodedInput{
		Buttons:    [2]uint8{b1, b2},
		Axis:       pendant.AxisX,
		AxisLetter: 'X',
		FeedKnob:   16,
	}
}

func snapshot(state machine.ActiveState, settings machine.Settings) machine.Snapshot {
	if settings == nil {
		settings = machine.Settings{}
	}
	return machine.Snapshot{
		State:    machine.MachineState{ActiveState: state},
		Settings: settings,
	}
}

func lines(res Result) []string {
	var out []string
	for _, c := range res.Commands {
		out = append(out, c.Line())
	}
	return out
}

func newDispatcher(opts Options) (*ButtonDispatcher, *pendant.DisplayMode) {
	mode := pendant.NewDisplayMode(false)
	return NewButtonDispatcher(opts, mode), mode
}

func TestButtonPlainActions(t *testing.T) {
	tests := []struct {
		name  string
		in    pendant.DecodedInput
		state machine.ActiveState
		want  []string
	}{
		{"reset", report(ButtonReset, 0), machine.StateIdle, []string{"$X\n"}},
		{"reset with fn", report(ButtonFn, ButtonReset), machine.StateRun, []string{"$X\n"}},
		{"stop", report(ButtonStop, 0), machine.StateRun, []string{"!\n"}},
		{"pause while running", report(ButtonFn, ButtonStartPause), machine.StateRun, []string{"!\n"}},
		{"pause while idle", report(ButtonStartPause, 0), machine.StateIdle, []string{"!\n"}},
		{"resume from hold", report(ButtonFn, ButtonStartPause), machine.StateHold, []string{"~\n"}},
		{"fn alone", report(ButtonFn, 0), machine.StateIdle, nil},
		{"unknown code", report(14, 0), machine.StateIdle, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDispatcher(DefaultOptions())
			res := d.OnReport(tt.in, snapshot(tt.state, nil))
			assert.Equal(t, tt.want, lines(res))
			assert.Empty(t, res.Diagnostics)
		})
	}
}

func TestButtonOverrides(t *testing.T) {
	tests := []struct {
		code uint8
		knob uint8
		want rune
	}{
		{ButtonFeedPlus, 13, 0x93},
		{ButtonFeedPlus, 26, 0x91},
		{ButtonFeedMinus, 15, 0x94},
		{ButtonFeedMinus, 16, 0x92},
		{ButtonSpindlePlus, 0, 0x9C},
		{ButtonSpindlePlus, 28, 0x9A},
		{ButtonSpindleMinus, 14, 0x9D},
		{ButtonSpindleMinus, 27, 0x9B},
	}

	for _, tt := range tests {
		d, _ := newDispatcher(DefaultOptions())
		in := report(ButtonFn, tt.code)
		in.FeedKnob = tt.knob

		res := d.OnReport(in, snapshot(machine.StateRun, nil))
		require.Len(t, res.Commands, 1)
		assert.Equal(t, string(tt.want)+"\n", res.Commands[0].Line(), "code %d knob %d", tt.code, tt.knob)
	}
}

func TestButtonHomeGate(t *testing.T) {
	for _, state := range []machine.ActiveState{machine.StateIdle, machine.StateCheck, machine.StateHome} {
		d, _ := newDispatcher(DefaultOptions())
		res := d.OnReport(report(ButtonFn, ButtonMachineHome), snapshot(state, nil))
		assert.Equal(t, []string{"$H\r\n"}, lines(res), state.String())
	}

	d, _ := newDispatcher(DefaultOptions())
	res := d.OnReport(report(ButtonFn, ButtonMachineHome), snapshot(machine.StateRun, nil))
	assert.Empty(t, res.Commands)
	require.Len(t, res.Diagnostics, 1)

	var refusal *GateRefusal
	require.True(t, errors.As(res.Diagnostics[0], &refusal))
	assert.Equal(t, machine.StateRun, refusal.State)
	assert.Equal(t, "cannot home in state Run", refusal.Error())
}

func TestButtonSafeZ(t *testing.T) {
	d, _ := newDispatcher(DefaultOptions())
	res := d.OnReport(report(ButtonFn, ButtonSafeZ),
		snapshot(machine.StateIdle, machine.Settings{"$27": 5, "$112": 500}))
	assert.Equal(t, []string{"$J=G53G21Z-5F500\n"}, lines(res))

	d, _ = newDispatcher(DefaultOptions())
	res = d.OnReport(report(ButtonFn, ButtonSafeZ),
		snapshot(machine.StateIdle, machine.Settings{"$27": 1.5}))
	assert.Empty(t, res.Commands)
	require.Len(t, res.Diagnostics, 1)

	var missing *MissingSetting
	require.True(t, errors.As(res.Diagnostics[0], &missing))
	assert.Equal(t, "$112", missing.Key)

	d, _ = newDispatcher(DefaultOptions())
	res = d.OnReport(report(ButtonFn, ButtonSafeZ),
		snapshot(machine.StateIdle, machine.Settings{"$112": 500}))
	require.Len(t, res.Diagnostics, 1)
	require.True(t, errors.As(res.Diagnostics[0], &missing))
	assert.Equal(t, "$27", missing.Key)
}

func TestButtonWorkHomeAndSpindle(t *testing.T) {
	d, _ := newDispatcher(DefaultOptions())
	res := d.OnReport(report(ButtonFn, ButtonWorkHome), snapshot(machine.StateCheck, nil))
	assert.Equal(t, []string{"G10 P1 L20 X0 Y0 Z0\n"}, lines(res))

	d, _ = newDispatcher(DefaultOptions())
	res = d.OnReport(report(ButtonFn, ButtonWorkHome), snapshot(machine.StateHome, nil))
	assert.Empty(t, res.Commands)
	assert.Len(t, res.Diagnostics, 1)

	d, _ = newDispatcher(DefaultOptions())
	snap := snapshot(machine.StateIdle, nil)
	res = d.OnReport(report(ButtonFn, ButtonSpindleOnOff), snap)
	assert.Equal(t, []string{"M3\n"}, lines(res))

	d, _ = newDispatcher(DefaultOptions())
	snap.State.SpindleSpeed = 12000
	res = d.OnReport(report(ButtonFn, ButtonSpindleOnOff), snap)
	assert.Equal(t, []string{"M5\n"}, lines(res))

	d, _ = newDispatcher(DefaultOptions())
	res = d.OnReport(report(ButtonFn, ButtonSpindleOnOff), snapshot(machine.StateRun, nil))
	assert.Empty(t, res.Commands)
	assert.Len(t, res.Diagnostics, 1)
}

func TestButtonProbe(t *testing.T) {
	opts := DefaultOptions()
	opts.ProbeCommand = "G38.2 Z-20 F50"

	d, _ := newDispatcher(opts)
	res := d.OnReport(report(ButtonFn, ButtonProbeZ), snapshot(machine.StateIdle, nil))
	require.Len(t, res.Commands, 1)
	assert.Equal(t, "G38.2 Z-20 F50\n", res.Commands[0].Line())
	assert.Equal(t, types.SourceProbe, res.Commands[0].Source)

	d, _ = newDispatcher(opts)
	res = d.OnReport(report(ButtonFn, ButtonProbeZ), snapshot(machine.StateCheck, nil))
	assert.Empty(t, res.Commands)
	var refusal *GateRefusal
	require.Len(t, res.Diagnostics, 1)
	assert.True(t, errors.As(res.Diagnostics[0], &refusal))

	d, _ = newDispatcher(DefaultOptions())
	res = d.OnReport(report(ButtonFn, ButtonProbeZ), snapshot(machine.StateIdle, nil))
	assert.Empty(t, res.Commands)
	var unassigned *Unassigned
	require.Len(t, res.Diagnostics, 1)
	assert.True(t, errors.As(res.Diagnostics[0], &unassigned))
}

func TestButtonMacros(t *testing.T) {
	opts := DefaultOptions()
	opts.Macros = map[int]string{1: "G0 X0 Y0", 9: "G0 Z10"}

	d, _ := newDispatcher(opts)
	res := d.OnReport(report(ButtonFeedPlus, 0), snapshot(machine.StateRun, nil))
	require.Len(t, res.Commands, 1)
	assert.Equal(t, "G0 X0 Y0\n", res.Commands[0].Line())
	assert.Equal(t, types.SourceMacro, res.Commands[0].Source)

	d, _ = newDispatcher(opts)
	res = d.OnReport(report(ButtonProbeZ, 0), snapshot(machine.StateRun, nil))
	assert.Equal(t, []string{"G0 Z10\n"}, lines(res))

	d, _ = newDispatcher(opts)
	res = d.OnReport(report(ButtonSafeZ, 0), snapshot(machine.StateIdle, nil))
	assert.Empty(t, res.Commands)
	require.Len(t, res.Diagnostics, 1)
	assert.EqualError(t, res.Diagnostics[0], "macro 6 not configured")
}

func TestButtonEdgeDetection(t *testing.T) {
	d, _ := newDispatcher(DefaultOptions())
	snap := snapshot(machine.StateRun, nil)

	first := d.OnReport(report(ButtonFn, ButtonStartPause), snap)
	second := d.OnReport(report(ButtonFn, ButtonStartPause), snap)
	assert.Len(t, first.Commands, 1)
	assert.Empty(t, second.Commands)

	// release then press again
	d.OnReport(report(ButtonFn, 0), snap)
	third := d.OnReport(report(ButtonFn, ButtonStartPause), snap)
	assert.Len(t, third.Commands, 1)
}

func TestButtonSlotSwapIsNotAPress(t *testing.T) {
	d, _ := newDispatcher(DefaultOptions())
	snap := snapshot(machine.StateIdle, nil)

	first := d.OnReport(report(ButtonReset, ButtonStop), snap)
	assert.Equal(t, []string{"$X\n", "!\n"}, lines(first))

	swapped := d.OnReport(report(ButtonStop, ButtonReset), snap)
	assert.Empty(t, swapped.Commands)
}

func TestButtonAxisOffClearsPrevious(t *testing.T) {
	d, _ := newDispatcher(DefaultOptions())
	snap := snapshot(machine.StateIdle, nil)

	d.OnReport(report(ButtonReset, 0), snap)
	assert.Equal(t, [2]uint8{ButtonReset, 0}, d.Previous())

	off := report(ButtonReset, ButtonStop)
	off.Axis = pendant.AxisOff
	off.JogDelta = 3
	res := d.OnReport(off, snap)
	assert.Empty(t, res.Commands)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, [2]uint8{}, d.Previous())

	// held button fires again once the selector is back on an axis
	res = d.OnReport(report(ButtonReset, 0), snap)
	assert.Equal(t, []string{"$X\n"}, lines(res))
}

func TestButtonDisplayToggle(t *testing.T) {
	d, mode := newDispatcher(DefaultOptions())
	snap := snapshot(machine.StateIdle, nil)

	res := d.OnReport(report(ButtonDisplayMode, 0), snap)
	assert.True(t, res.DisplayToggled)
	assert.Empty(t, res.Commands)
	assert.True(t, mode.WorkCoords())

	d.OnReport(report(0, 0), snap)
	res = d.OnReport(report(ButtonFn, ButtonDisplayMode), snap)
	assert.True(t, res.DisplayToggled)
	assert.False(t, mode.WorkCoords())
}

func TestOptionsDryRun(t *testing.T) {
	opts := Options{DryRunButtons: true, DryRunProbe: true}
	assert.True(t, opts.DryRun(types.SourceButton))
	assert.True(t, opts.DryRun(types.SourceMacro))
	assert.True(t, opts.DryRun(types.SourceProbe))
	assert.False(t, opts.DryRun(types.SourceJog))
	assert.False(t, opts.DryRun(types.SourceDisplay))
}

package dispatch

import (
	"fmt"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
)

// GateRefusal: the action is not permitted in the current active state.
type GateRefusal struct {
	Action string
	State  machine.ActiveState
}

func (e *GateRefusal) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Action, e.State)
}

// MissingSetting: a controller setting needed to build the command is absent.
type MissingSetting struct {
	Action string
	Key    string
}

func (e *MissingSetting) Error() string {
	return fmt.Sprintf("cannot %s: setting %s not set", e.Action, e.Key)
}

// UnhandledScale: the feed knob position has no jog increment.
type UnhandledScale struct {
	FeedKnob uint8
}

func (e *UnhandledScale) Error() string {
	return fmt.Sprintf("feed select value %d not handled", e.FeedKnob)
}

// Unassigned: a button action has nothing configured (macro slot, probe command).
type Unassigned struct {
	Action string
}

func (e *Unassigned) Error() string {
	return fmt.Sprintf("%s not configured", e.Action)
}

// gate returns a refusal unless state is in allowed.
func gate(action string, allowed machine.StateSet, state machine.ActiveState) error {
	if allowed.Contains(state) {
		return nil
	}
	return &GateRefusal{Action: action, State: state}
}

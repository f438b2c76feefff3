package cncjs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
)

// number accepts JSON numbers and numeric strings ("12.500").
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = number(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

type axesPayload struct {
	X *number `json:"x"`
	Y *number `json:"y"`
	Z *number `json:"z"`
	A *number `json:"a"`
	B *number `json:"b"`
	C *number `json:"c"`
}

// position returns X, Y, Z and any rotary axes present, in order.
// An absent payload yields nil.
func (a *axesPayload) position() machine.Position {
	if a == nil {
		return nil
	}

	pos := machine.Position{a.X.value(), a.Y.value(), a.Z.value()}
	for _, extra := range []*number{a.A, a.B, a.C} {
		if extra == nil {
			break
		}
		pos = append(pos, float64(*extra))
	}
	return pos
}

func (n *number) value() float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}

type grblStatePayload struct {
	Status struct {
		ActiveState string       `json:"activeState"`
		MPos        *axesPayload `json:"mpos"`
		WPos        *axesPayload `json:"wpos"`
		Spindle     number       `json:"spindle"`
	} `json:"status"`
}

// ParseState converts a Grbl:state payload into a MachineState.
func ParseState(raw json.RawMessage) (machine.MachineState, error) {
	var p grblStatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return machine.MachineState{}, fmt.Errorf("failed to parse Grbl:state: %w", err)
	}

	return machine.MachineState{
		ActiveState:     machine.ParseActiveState(p.Status.ActiveState),
		MachinePosition: p.Status.MPos.position(),
		WorkPosition:    p.Status.WPos.position(),
		SpindleSpeed:    float64(p.Status.Spindle),
	}, nil
}

type grblSettingsPayload struct {
	Parameters map[string]json.RawMessage `json:"parameters"`
	Settings   map[string]json.RawMessage `json:"settings"`
}

// ParseSettings converts a Grbl:settings payload into a settings map.
// The $NNN values live in "settings"; "parameters" carries the $# offsets
// and only fills keys that "settings" does not have.
// Non-numeric and null entries are skipped.
func ParseSettings(raw json.RawMessage) (machine.Settings, error) {
	var p grblSettingsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse Grbl:settings: %w", err)
	}

	settings := make(machine.Settings, len(p.Settings)+len(p.Parameters))
	mergeNumeric(settings, p.Parameters)
	mergeNumeric(settings, p.Settings)
	return settings, nil
}

func mergeNumeric(dst machine.Settings, src map[string]json.RawMessage) {
	for key, value := range src {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		var n number
		if err := json.Unmarshal(value, &n); err != nil {
			continue
		}
		dst[key] = float64(n)
	}
}

// PortInfo is one entry of a serialport:list event.
type PortInfo struct {
	Port         string `json:"port"`
	Manufacturer string `json:"manufacturer,omitempty"`
	InUse        bool   `json:"inuse"`
}

// SelectPort returns the first port in use, or fallback when none is.
func SelectPort(ports []PortInfo, fallback string) string {
	for _, p := range ports {
		if p.InUse {
			return p.Port
		}
	}
	return fallback
}

// OpenOptions is the second argument of the "open" event.
type OpenOptions struct {
	Baudrate       int    `json:"baudrate"`
	ControllerType string `json:"controllerType"`
}

type serialPortPayload struct {
	Port     string `json:"port"`
	Baudrate int    `json:"baudrate"`
}

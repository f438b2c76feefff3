package pendant

import (
	"errors"
	"fmt"
)

// Input report layout (XHC-HB04), 7 meaningful bytes:
//
//	[0] report id   [1] unused
//	[2] button 1    [3] button 2
//	[4] feed knob   [5] axis selector   [6] jog delta (int8)
const (
	ReportLength = 7

	offsetButton1  = 2
	offsetButton2  = 3
	offsetFeedKnob = 4
	offsetAxis     = 5
	offsetJog      = 6

	axisOffRaw  = 0x06
	axisBaseRaw = 0x11

	// ModifierButton is the "Fn" key; held together with another button it selects the F variant.
	ModifierButton = 12
)

// DefaultAxisLetters is the selector table of the pendant dial.
const DefaultAxisLetters = "XYZABC"

var (
	ErrTruncated   = errors.New("report truncated")
	ErrInvalidAxis = errors.New("invalid axis selector")
)

// Axis is the decoded position of the axis selector dial.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
	AxisOff Axis = -1
)

func (a Axis) String() string {
	if a == AxisOff {
		return "Off"
	}
	if a < 0 || int(a) >= len(DefaultAxisLetters) {
		return "Invalid"
	}
	return string(DefaultAxisLetters[a])
}

// Index is the selector position, used for the "$11x" max-rate setting lookup.
func (a Axis) Index() int {
	return int(a)
}

// DecodedInput is one pendant report in semantic form.
type DecodedInput struct {
	Buttons    [2]uint8
	Axis       Axis
	AxisLetter byte // 0 when Axis is Off
	JogDelta   int8 // 0 means no jog motion
	FeedKnob   uint8
}

// HasJog reports whether the jog wheel moved in this report.
func (d DecodedInput) HasJog() bool {
	return d.JogDelta != 0
}

// Pressed reports whether code is present in either button slot.
func (d DecodedInput) Pressed(code uint8) bool {
	return code != 0 && (d.Buttons[0] == code || d.Buttons[1] == code)
}

// ModifierHeld reports whether the Fn key is part of the current button set.
func (d DecodedInput) ModifierHeld() bool {
	return d.Pressed(ModifierButton)
}

// Codec decodes pendant input reports and encodes LCD display packets.
type Codec struct {
	axisLetters string
}

func NewCodec(axisLetters string) *Codec {
	if axisLetters == "" {
		axisLetters = DefaultAxisLetters
	}
	return &Codec{axisLetters: axisLetters}
}

// AxisLetters returns the selector table used by this codec.
func (c *Codec) AxisLetters() string {
	return c.axisLetters
}

// Decode parses a raw input report. It is pure: equal bytes give equal results.
func (c *Codec) Decode(raw []byte) (DecodedInput, error) {
	if len(raw) < ReportLength {
		return DecodedInput{}, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncated, len(raw), ReportLength)
	}

	in := DecodedInput{
		Buttons:  [2]uint8{raw[offsetButton1], raw[offsetButton2]},
		FeedKnob: raw[offsetFeedKnob],
		JogDelta: int8(raw[offsetJog]), // two's complement: >127 means value-256
	}

	selector := raw[offsetAxis]
	if selector == axisOffRaw {
		in.Axis = AxisOff
		return in, nil
	}

	index := int(selector) - axisBaseRaw
	if index < 0 || index >= len(c.axisLetters) || index > int(AxisC) {
		return DecodedInput{}, fmt.Errorf("%w: selector byte 0x%02X", ErrInvalidAxis, selector)
	}

	in.Axis = Axis(index)
	in.AxisLetter = c.axisLetters[index]
	return in, nil
}

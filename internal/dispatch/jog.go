package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
)

// Grbl max rate settings are $110 (X) .. $115 (C)
const maxRateSettingBase = 110

// jogScale maps feed knob positions to jog increments per wheel detent.
var jogScale = map[uint8]float64{
	13: 0.001,
	14: 0.01,
	15: 0.1,
	16: 1,
	26: 10,  // 60%
	27: 100, // 100%
	28: 250, // Lead
}

// jogAllowed is the controller state gate applied by the bridge before sending a jog.
var jogAllowed = machine.NewStateSet(machine.StateIdle, machine.StateJog, machine.StateCheck)

// JogTranslator converts jog wheel motion into $J jog commands.
type JogTranslator struct{}

func NewJogTranslator() *JogTranslator {
	return &JogTranslator{}
}

// OnJog returns the jog command for in, or (nil, nil) when the wheel did not move.
// A non-nil error is a diagnostic: no command is produced.
func (j *JogTranslator) OnJog(in pendant.DecodedInput, settings machine.Settings) (*types.Command, error) {
	if !in.HasJog() || in.Axis == pendant.AxisOff {
		return nil, nil
	}

	scale, ok := jogScale[in.FeedKnob]
	if !ok {
		return nil, &UnhandledScale{FeedKnob: in.FeedKnob}
	}

	key := "$" + strconv.Itoa(maxRateSettingBase+in.Axis.Index())
	maxRate, ok := settings.Lookup(key)
	if !ok {
		return nil, &MissingSetting{Action: "jog " + string(in.AxisLetter), Key: key}
	}

	distance := toPrecision(float64(in.JogDelta)*scale, 4)
	cmd := types.NewLine(types.SourceJog,
		"$J=G21G91"+string(in.AxisLetter)+distance+"F"+formatSetting(maxRate))

	return &cmd, nil
}

// JogGate is the state check applied before a jog command is sent.
func JogGate(state machine.ActiveState) error {
	return gate("jog", jogAllowed, state)
}

// toPrecision formats v with the given number of significant digits,
// keeping trailing zeros ("5.000"). Exponents are written without padding ("1.250e+4").
func toPrecision(v float64, digits int) string {
	s := fmt.Sprintf("%#.*g", digits, v)

	mantissa, exponent, found := strings.Cut(s, "e")
	mantissa = strings.TrimSuffix(mantissa, ".")
	if !found {
		return mantissa
	}

	sign := exponent[:1]
	exponent = strings.TrimLeft(exponent[1:], "0")
	if exponent == "" {
		exponent = "0"
	}
	return mantissa + "e" + sign + exponent
}

package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "$X\n", NewLine(SourceButton, "$X").Line())
	assert.Equal(t, "$H\r\n", NewLineCRLF(SourceButton, "$H").Line())

	cmd := NewLine(SourceJog, "$J=G21G91X1F500")
	assert.Equal(t, CommandLine, cmd.Kind)
	assert.Equal(t, `"$J=G21G91X1F500\n"`, cmd.String())
}

func TestCommandPacket(t *testing.T) {
	cmd := NewPacket([]byte{0x06, 0xFE, 0xFD})

	assert.Equal(t, CommandPacket, cmd.Kind)
	assert.Equal(t, SourceDisplay, cmd.Source)
	assert.Equal(t, "packet 06 FE FD", cmd.String())
	assert.Equal(t, "packet", cmd.Kind.String())
}

func TestErrorResponseFromError(t *testing.T) {
	resp := NewErrorResponseFromError(CodeBridgeUnavailable, "Bridge not running", errors.New("bridge stopped"))
	assert.Equal(t, "BRIDGE_503", resp.Error.Code)
	assert.Equal(t, "bridge stopped", resp.Error.Details)

	resp = NewErrorResponseFromError(CodeJournalDisabled, "Journal disabled", nil)
	assert.Nil(t, resp.Error.Details)
}

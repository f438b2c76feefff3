package types

import "fmt"

// CommandKind distinguishes controller text lines from pendant packets.
type CommandKind int

const (
	CommandLine CommandKind = iota
	CommandPacket
)

func (k CommandKind) String() string {
	switch k {
	case CommandLine:
		return "line"
	case CommandPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// CommandSource records which pendant action produced a command.
// Dry-run switches are keyed on it.
type CommandSource string

const (
	SourceButton  CommandSource = "button"
	SourceMacro   CommandSource = "macro"
	SourceJog     CommandSource = "jog"
	SourceProbe   CommandSource = "probe"
	SourceDisplay CommandSource = "display"
)

// Line terminators used by the dispatch table
const (
	TerminatorLF   = "\n"
	TerminatorCRLF = "\r\n"
)

// Command is either a text line for the controller or a feature report for the pendant.
type Command struct {
	Kind       CommandKind
	Source     CommandSource
	Text       string // payload without terminator
	Terminator string
	Packet     []byte
}

// NewLine creates a controller command terminated with "\n".
func NewLine(source CommandSource, text string) Command {
	return Command{
		Kind:       CommandLine,
		Source:     source,
		Text:       text,
		Terminator: TerminatorLF,
	}
}

// NewLineCRLF creates a controller command terminated with "\r\n".
func NewLineCRLF(source CommandSource, text string) Command {
	return Command{
		Kind:       CommandLine,
		Source:     source,
		Text:       text,
		Terminator: TerminatorCRLF,
	}
}

// NewPacket wraps a pendant feature report.
func NewPacket(packet []byte) Command {
	return Command{
		Kind:   CommandPacket,
		Source: SourceDisplay,
		Packet: packet,
	}
}

// Line returns the text with its terminator, ready for the controller channel.
func (c Command) Line() string {
	return c.Text + c.Terminator
}

func (c Command) String() string {
	if c.Kind == CommandPacket {
		return fmt.Sprintf("packet % X", c.Packet)
	}
	return fmt.Sprintf("%q", c.Line())
}

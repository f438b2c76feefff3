package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Machine state messages
	MessageTypeMachineState MessageType = "machine_state"

	// Pendant activity
	MessageTypeCommand     MessageType = "command"
	MessageTypeDiagnostic  MessageType = "diagnostic"
	MessageTypeDisplayMode MessageType = "display_mode"

	// Sent once after connect
	MessageTypeBridgeStatus MessageType = "bridge_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MachineStateData represents machine state change data
type MachineStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// CommandData describes a command produced by the pendant
type CommandData struct {
	Source string `json:"source"`
	Text   string `json:"text"`
	DryRun bool   `json:"dry_run"`
}

type DiagnosticData struct {
	Message string `json:"message"`
}

type DisplayModeData struct {
	Mode string `json:"mode"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewMachineStateMessage(newState, previousState string) Message {
	return NewMessage(MessageTypeMachineState, MachineStateData{
		State:    newState,
		Previous: previousState,
	})
}

func NewCommandMessage(source, text string, dryRun bool) Message {
	return NewMessage(MessageTypeCommand, CommandData{
		Source: source,
		Text:   text,
		DryRun: dryRun,
	})
}

func NewDiagnosticMessage(message string) Message {
	return NewMessage(MessageTypeDiagnostic, DiagnosticData{Message: message})
}

func NewDisplayModeMessage(workCoords bool) Message {
	mode := "machine"
	if workCoords {
		mode = "work"
	}
	return NewMessage(MessageTypeDisplayMode, DisplayModeData{Mode: mode})
}

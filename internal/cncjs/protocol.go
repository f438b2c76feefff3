package cncjs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v3 packet types (first byte of every frame)
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v2 packet types (second byte of an Engine.IO message)
const (
	socketConnect    = '0'
	socketDisconnect = '1'
	socketEvent      = '2'
	socketError      = '4'
)

// FrameKind classifies a decoded websocket frame.
type FrameKind int

const (
	FrameOpen FrameKind = iota
	FrameClose
	FramePing
	FramePong
	FrameNoop
	FrameConnect
	FrameDisconnect
	FrameEvent
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameNoop:
		return "noop"
	case FrameConnect:
		return "connect"
	case FrameDisconnect:
		return "disconnect"
	case FrameEvent:
		return "event"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

var ErrMalformedFrame = errors.New("malformed socket.io frame")

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
}

// Frame is one decoded Engine.IO/Socket.IO packet.
type Frame struct {
	Kind      FrameKind
	Handshake Handshake         // FrameOpen
	Event     string            // FrameEvent
	Args      []json.RawMessage // FrameEvent
	Payload   string            // FrameError, FramePing/FramePong probe data
}

// DecodeFrame parses a text frame received from the server.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	body := data[1:]

	switch data[0] {
	case engineOpen:
		var hs Handshake
		if err := json.Unmarshal(body, &hs); err != nil {
			return Frame{}, fmt.Errorf("%w: open payload: %v", ErrMalformedFrame, err)
		}
		return Frame{Kind: FrameOpen, Handshake: hs}, nil
	case engineClose:
		return Frame{Kind: FrameClose}, nil
	case enginePing:
		return Frame{Kind: FramePing, Payload: string(body)}, nil
	case enginePong:
		return Frame{Kind: FramePong, Payload: string(body)}, nil
	case engineNoop:
		return Frame{Kind: FrameNoop}, nil
	case engineMessage:
		return decodeSocketPacket(body)
	default:
		return Frame{}, fmt.Errorf("%w: engine type %q", ErrMalformedFrame, data[0])
	}
}

func decodeSocketPacket(body []byte) (Frame, error) {
	if len(body) == 0 {
		return Frame{}, fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}

	payload := stripNamespaceAndAck(body[1:])

	switch body[0] {
	case socketConnect:
		return Frame{Kind: FrameConnect}, nil
	case socketDisconnect:
		return Frame{Kind: FrameDisconnect}, nil
	case socketError:
		return Frame{Kind: FrameError, Payload: string(payload)}, nil
	case socketEvent:
		var raw []json.RawMessage
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Frame{}, fmt.Errorf("%w: event payload: %v", ErrMalformedFrame, err)
		}
		if len(raw) == 0 {
			return Frame{}, fmt.Errorf("%w: event without name", ErrMalformedFrame)
		}

		var name string
		if err := json.Unmarshal(raw[0], &name); err != nil {
			return Frame{}, fmt.Errorf("%w: event name: %v", ErrMalformedFrame, err)
		}
		return Frame{Kind: FrameEvent, Event: name, Args: raw[1:]}, nil
	default:
		return Frame{}, fmt.Errorf("%w: socket type %q", ErrMalformedFrame, body[0])
	}
}

// stripNamespaceAndAck drops an optional "/nsp," prefix and a numeric ack id.
func stripNamespaceAndAck(b []byte) []byte {
	s := string(b)
	if strings.HasPrefix(s, "/") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return []byte(s[i:])
}

// EncodeEvent builds a "42[...]" event frame.
func EncodeEvent(event string, args ...any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event, err)
	}

	return append([]byte{engineMessage, socketEvent}, data...), nil
}

// pingFrame is the client heartbeat, pongFrame the reply to a server ping.
var (
	pingFrame = []byte{enginePing}
	pongFrame = []byte{enginePong}
)

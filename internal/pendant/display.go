package pendant

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Display frame layout (16 bytes used of a 21 byte buffer):
//
//	[0..2]  magic 0xFE 0xFD, seed 0x04
//	[3]     mode byte
//	[4..7]  X   [8..11] Y   [12..15] Z
//
// The buffer goes out as three feature reports of 8 bytes: report id 6 plus a 7 byte window.
const (
	displayBufferSize = 21
	displayWindowSize = 7
	displayPackets    = displayBufferSize / displayWindowSize

	DisplayReportID = 0x06
	PacketSize      = displayWindowSize + 1

	displayMagic0 = 0xFE
	displayMagic1 = 0xFD
	displaySeed   = 0x04

	modeStep       = 0x01
	modeWorkCoords = 0x80

	signFlag    = 0x80
	fracScale   = 10000
	displayAxes = 3
)

// DisplayMode selects work (true) or machine (false) coordinates on the LCD.
// The bridge loop toggles it, the status API reads it.
type DisplayMode struct {
	work atomic.Bool
}

func NewDisplayMode(work bool) *DisplayMode {
	m := &DisplayMode{}
	m.work.Store(work)
	return m
}

// WorkCoords reports whether the LCD shows work coordinates.
func (m *DisplayMode) WorkCoords() bool {
	return m.work.Load()
}

// Toggle flips the mode and returns the new value.
func (m *DisplayMode) Toggle() bool {
	for {
		old := m.work.Load()
		if m.work.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (m *DisplayMode) String() string {
	if m.WorkCoords() {
		return "work"
	}
	return "machine"
}

// EncodeDisplay builds the feature reports for one LCD refresh.
// Fewer than three position components yields no packets.
func (c *Codec) EncodeDisplay(position []float64, useWorkCoords bool) [][]byte {
	if len(position) < displayAxes {
		return nil
	}

	// zeroed so the trailing 5 bytes never carry stale data
	buf := make([]byte, displayBufferSize)
	buf[0] = displayMagic0
	buf[1] = displayMagic1
	buf[2] = displaySeed

	buf[3] = modeStep
	if useWorkCoords {
		buf[3] |= modeWorkCoords
	}

	for i := 0; i < displayAxes; i++ {
		encodeCoordinate(buf[4+i*4:8+i*4], position[i])
	}

	packets := make([][]byte, 0, displayPackets)
	for offset := 0; offset < displayBufferSize; offset += displayWindowSize {
		packet := make([]byte, PacketSize)
		packet[0] = DisplayReportID
		copy(packet[1:], buf[offset:offset+displayWindowSize])
		packets = append(packets, packet)
	}

	return packets
}

// encodeCoordinate writes |v| as integer and 1/10000 fraction (both uint16 LE).
// The sign rides in the high bit of the fraction.
func encodeCoordinate(dst []byte, v float64) {
	u := math.Abs(v)
	intPart := math.Trunc(u)
	fracPart := math.Trunc((u - intPart) * fracScale)

	binary.LittleEndian.PutUint16(dst[0:2], uint16(uint64(intPart)))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(uint64(fracPart)))

	if v < 0 {
		dst[3] |= signFlag
	}
}

// DecodeCoordinate reverses encodeCoordinate.
func DecodeCoordinate(src []byte) float64 {
	intPart := binary.LittleEndian.Uint16(src[0:2])
	frac := binary.LittleEndian.Uint16(src[2:4])
	negative := frac&(signFlag<<8) != 0
	frac &^= signFlag << 8

	v := float64(intPart) + float64(frac)/fracScale
	if negative {
		v = -v
	}
	return v
}

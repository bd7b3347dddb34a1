package frame

import (
	"fmt"
	"time"
)

const (
	// Length is the fixed size of a receiver frame on the wire.
	Length = 8

	Sync1          byte = 0x55
	Sync2          byte = 0xAA
	DeclaredLength byte = 0x08

	offsetSensorID    = 3
	offsetPressure    = 4
	offsetTemperature = 5
	offsetChecksum    = 7
)

// Frame is one candidate unit extracted from the byte stream:
// [sync1, sync2, length, sensorId, pressure, temperature, reserved, checksum]
type Frame [Length]byte

// Reading is the payload of a frame whose checksum validated.
type Reading struct {
	SensorID     uint8
	PressurePSI  uint8
	TemperatureF uint8
	ReceivedAt   time.Time
}

// New builds a well formed frame with the checksum filled in.
func New(sensorID, pressure, temperature uint8) Frame {
	f := Frame{Sync1, Sync2, DeclaredLength, sensorID, pressure, temperature, 0x00}
	f[offsetChecksum] = Checksum(f[:offsetChecksum])
	return f
}

// Checksum is the XOR of every byte in b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

func (f Frame) HasSync() bool {
	return f[0] == Sync1 && f[1] == Sync2 && f[2] == DeclaredLength
}

// Valid reports whether the frame carries the sync prefix and its checksum
// byte matches the XOR of bytes 0-6.
func (f Frame) Valid() bool {
	return f.HasSync() && f[offsetChecksum] == Checksum(f[:offsetChecksum])
}

func (f Frame) SensorID() uint8 {
	return f[offsetSensorID]
}

func (f Frame) Pressure() uint8 {
	return f[offsetPressure]
}

func (f Frame) Temperature() uint8 {
	return f[offsetTemperature]
}

func (f Frame) Reading(at time.Time) Reading {
	return Reading{
		SensorID:     f.SensorID(),
		PressurePSI:  f.Pressure(),
		TemperatureF: f.Temperature(),
		ReceivedAt:   at,
	}
}

func (f Frame) String() string {
	return fmt.Sprintf("% X", f[:])
}

func isSync(b []byte, i int) bool {
	return b[i] == Sync1 && b[i+1] == Sync2 && b[i+2] == DeclaredLength
}

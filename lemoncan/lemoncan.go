package lemoncan

import (
	"github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// one frame id per tire slot, frameTireBase + position index
	frameTireBase uint32 = 0x110
	frameTireMax         = frameTireBase + 7

	tireFrameLength = 5
)

// Tire is the state of one tire slot as published to the dashboard.
type Tire struct {
	PositionIndex int
	SensorID      uint8
	PressurePSI   uint8
	TemperatureF  uint8
	Status        uint8
	Alarm         bool
}

type CANBus interface {
	Disconnect() error
	Publish(can.Frame) error
}

type Connection struct {
	bus CANBus
}

// to allow testing
var newBus = func(portName string) (CANBus, error) {
	return can.NewBusForInterfaceWithName(portName)
}

func Connect(portName string) (*Connection, error) {
	bus, err := newBus(portName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open can interface %s", portName)
	}
	log.WithField("interface", portName).Info("CAN bus opened")
	return &Connection{
		bus: bus,
	}, nil
}

func (c *Connection) Close() error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	return c.bus.Disconnect()
}

func (c *Connection) SendTire(t Tire) error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	f, err := tireFrame(t)
	if err != nil {
		return err
	}
	log.WithField("canID", f.ID).
		WithField("sensorID", t.SensorID).
		Debug("sending tire over canbus")
	return c.bus.Publish(f)
}

func tireFrame(t Tire) (can.Frame, error) {
	if t.PositionIndex < 0 || frameTireBase+uint32(t.PositionIndex) > frameTireMax {
		return can.Frame{}, errors.Errorf("no can frame for position index %d", t.PositionIndex)
	}
	var alarm uint8
	if t.Alarm {
		alarm = 1
	}
	return can.Frame{
		ID:     frameTireBase + uint32(t.PositionIndex),
		Length: tireFrameLength,
		Data:   [8]uint8{t.SensorID, t.PressurePSI, t.TemperatureF, t.Status, alarm},
	}, nil
}

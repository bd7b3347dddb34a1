package lemoncan

import (
	"testing"

	"github.com/brutella/can"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busStub struct {
	disconnected bool
	publishChan  chan *can.Frame
}

func (bus *busStub) Disconnect() error {
	bus.disconnected = true
	return nil
}

func (bus *busStub) Publish(f can.Frame) error {
	bus.publishChan <- &f
	return nil
}

func TestConnect(t *testing.T) {
	origNewBus := newBus
	bus := &busStub{}
	newBus = func(string) (CANBus, error) {
		return bus, nil
	}
	defer func() {
		newBus = origNewBus
	}()

	c, err := Connect("fakeport")
	assert.NotNil(t, c)
	assert.NoError(t, err)
	assert.IsType(t, &busStub{}, c.bus)

	assert.NoError(t, c.Close())
	assert.True(t, bus.disconnected)
}

func TestConnectError(t *testing.T) {
	origNewBus := newBus
	newBus = func(string) (CANBus, error) {
		return nil, errors.New("no such interface")
	}
	defer func() {
		newBus = origNewBus
	}()

	c, err := Connect("fakeport")
	assert.Nil(t, c)
	assert.Error(t, err)
}

func TestSendTire(t *testing.T) {
	bus := &busStub{
		publishChan: make(chan *can.Frame, 1),
	}
	c := &Connection{
		bus: bus,
	}

	assert.NoError(t, c.SendTire(Tire{
		PositionIndex: 2,
		SensorID:      9,
		PressurePSI:   31,
		TemperatureF:  80,
		Status:        4,
		Alarm:         true,
	}))
	f := <-bus.publishChan
	assert.Equal(t, frameTireBase+2, f.ID)
	assert.Equal(t, uint8(tireFrameLength), f.Length)
	assert.Equal(t, [8]uint8{9, 31, 80, 4, 1}, f.Data)
}

func TestSendTireRejectsPosition(t *testing.T) {
	c := &Connection{
		bus: &busStub{},
	}
	assert.Error(t, c.SendTire(Tire{PositionIndex: -1}))
	assert.Error(t, c.SendTire(Tire{PositionIndex: 8}))
}

func TestNotConnected(t *testing.T) {
	c := &Connection{}
	assert.Error(t, c.Close())
	assert.Error(t, c.SendTire(Tire{}))
}

func TestTireFrame(t *testing.T) {
	f, err := tireFrame(Tire{PositionIndex: 7, SensorID: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(frameTireMax), f.ID)
	assert.Equal(t, uint8(0), f.Data[4])
}

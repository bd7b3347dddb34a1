package transport

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jd3nn1s/tpms/config"
	"github.com/jd3nn1s/tpms/frame"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type portStub struct {
	*bytes.Reader
	closed bool
}

func (p *portStub) Close() error {
	p.closed = true
	return nil
}

func TestSerial(t *testing.T) {
	origSerialOpen := serialOpen
	defer func() {
		serialOpen = origSerialOpen
	}()

	f := frame.New(1, 32, 75)
	stub := &portStub{Reader: bytes.NewReader(f[:])}
	var gotMode *serial.Mode
	serialOpen = func(portName string, mode *serial.Mode) (io.ReadCloser, error) {
		assert.Equal(t, "/dev/ttyUSB1", portName)
		gotMode = mode
		return stub, nil
	}

	s := NewSerial("/dev/ttyUSB1", 38400)
	// close before opening
	assert.NoError(t, s.Close())
	_, err := s.Read(make([]byte, 8))
	assert.Equal(t, ErrClosed, err)

	require.NoError(t, s.Open())
	assert.Equal(t, 38400, gotMode.BaudRate)
	assert.Equal(t, 8, gotMode.DataBits)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
	assert.Equal(t, serial.OneStopBit, gotMode.StopBits)

	buf := make([]byte, 16)
	n, err := s.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, f[:], buf[:n])

	assert.NoError(t, s.Close())
	assert.True(t, stub.closed)
	assert.NoError(t, s.Close(), "second close is a no-op")
	assert.Contains(t, s.Name(), "/dev/ttyUSB1")
}

func TestSerialOpenError(t *testing.T) {
	origSerialOpen := serialOpen
	defer func() {
		serialOpen = origSerialOpen
	}()
	serialOpen = func(string, *serial.Mode) (io.ReadCloser, error) {
		return nil, errors.New("no such device")
	}
	assert.Error(t, NewSerial("/dev/none", 9600).Open())
}

func TestParseBDAddr(t *testing.T) {
	addr, err := parseBDAddr("00:11:22:33:44:55")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x55, 0x44, 0x33, 0x22, 0x11, 0x00}, addr)

	_, err = parseBDAddr("not-a-mac")
	assert.Error(t, err)
	_, err = parseBDAddr("00:00:5e:00:53:00:00:01")
	assert.Error(t, err, "eui-64 is not a bluetooth address")
}

func TestBluetooth(t *testing.T) {
	origDial := rfcommDial
	defer func() {
		rfcommDial = origDial
	}()

	f := frame.New(2, 30, 70)
	stub := &portStub{Reader: bytes.NewReader(f[:])}
	rfcommDial = func(addr [6]byte, channel uint8) (io.ReadCloser, error) {
		assert.Equal(t, [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, addr)
		assert.Equal(t, uint8(DefaultRFCOMMChannel), channel)
		return stub, nil
	}

	b, err := NewBluetooth("11:22:33:44:55:66", 0)
	require.NoError(t, err)
	require.NoError(t, b.Open())

	buf := make([]byte, 8)
	n, err := b.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)

	assert.NoError(t, b.Close())
	assert.True(t, stub.closed)
	_, err = b.Read(buf)
	assert.Equal(t, ErrClosed, err)
}

func TestSimulatorProducesFrames(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{
		Sensors:      3,
		Interval:     time.Millisecond,
		Seed:         7,
		NoiseEvery:   4,
		CorruptEvery: 5,
	})
	require.NoError(t, sim.Open())
	defer sim.Close()

	d := frame.NewDecoder(0, frame.Callbacks{})
	seen := map[uint8]bool{}
	buf := make([]byte, 64)
	for i := 0; i < 200 && len(seen) < 3; i++ {
		n, err := sim.Read(buf)
		require.NoError(t, err)
		for _, r := range d.Feed(buf[:n]) {
			seen[r.SensorID] = true
		}
	}
	assert.Equal(t, map[uint8]bool{1: true, 2: true, 3: true}, seen)
}

func TestSimulatorCloseUnblocksRead(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Interval: time.Hour})
	require.NoError(t, sim.Open())

	wg := sync.WaitGroup{}
	wg.Add(1)
	var readErr error
	go func() {
		_, readErr = sim.Read(make([]byte, 8))
		wg.Done()
	}()
	assert.NoError(t, sim.Close())
	wg.Wait()
	assert.Equal(t, ErrClosed, readErr)
}

func TestOpenByType(t *testing.T) {
	cfg := config.Default().Transport

	src, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Serial{}, src)

	cfg.Type = config.TransportSimulator
	src, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Simulator{}, src)

	cfg.Type = config.TransportBluetooth
	cfg.Address = "00:11:22:33:44:55"
	src, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Bluetooth{}, src)

	cfg.Type = "carrier-pigeon"
	_, err = Open(cfg)
	assert.Error(t, err)
}

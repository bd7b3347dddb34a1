package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// to allow testing
var serialOpen = func(portName string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(portName, mode)
}

// Serial reads the receiver over a USB serial adapter, 8-N-1.
type Serial struct {
	PortName string
	BaudRate int

	mu   sync.Mutex
	port io.ReadCloser
}

func NewSerial(portName string, baudRate int) *Serial {
	return &Serial{
		PortName: portName,
		BaudRate: baudRate,
	}
}

func (s *Serial) Name() string {
	return fmt.Sprintf("serial %s@%d", s.PortName, s.BaudRate)
}

func (s *Serial) Open() error {
	port, err := serialOpen(s.PortName, &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to open serial port %s", s.PortName)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	log.WithField("port", s.PortName).
		WithField("baud", s.BaudRate).
		Info("serial port opened")
	return nil
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return 0, ErrClosed
	}
	return port.Read(p)
}

func (s *Serial) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

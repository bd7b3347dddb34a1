package transport

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultRFCOMMChannel is where serial port profile adapters usually listen.
const DefaultRFCOMMChannel = 1

// to allow testing
var rfcommDial = dialRFCOMM

// Bluetooth reads the receiver through a serial port profile (RFCOMM) link.
type Bluetooth struct {
	Address string
	Channel int

	bdaddr [6]byte

	mu   sync.Mutex
	conn io.ReadCloser
}

func NewBluetooth(address string, channel int) (*Bluetooth, error) {
	bdaddr, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}
	if channel == 0 {
		channel = DefaultRFCOMMChannel
	}
	return &Bluetooth{
		Address: address,
		Channel: channel,
		bdaddr:  bdaddr,
	}, nil
}

func (b *Bluetooth) Name() string {
	return fmt.Sprintf("bluetooth %s/%d", b.Address, b.Channel)
}

func (b *Bluetooth) Open() error {
	conn, err := rfcommDial(b.bdaddr, uint8(b.Channel))
	if err != nil {
		return errors.Wrapf(err, "unable to connect to %s", b.Address)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	log.WithField("address", b.Address).
		WithField("channel", b.Channel).
		Info("bluetooth connected")
	return nil
}

func (b *Bluetooth) Read(p []byte) (int, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}
	return conn.Read(p)
}

func (b *Bluetooth) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// parseBDAddr converts "00:11:22:33:44:55" to the little endian byte order
// the kernel expects in a sockaddr_rc.
func parseBDAddr(s string) ([6]byte, error) {
	var addr [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return addr, errors.Wrapf(err, "invalid bluetooth address %q", s)
	}
	if len(hw) != len(addr) {
		return addr, errors.Errorf("invalid bluetooth address %q: want 6 bytes, got %d", s, len(hw))
	}
	for i := range addr {
		addr[i] = hw[len(hw)-1-i]
	}
	return addr, nil
}

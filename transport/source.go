package transport

import (
	"github.com/jd3nn1s/tpms/config"
	"github.com/pkg/errors"
)

// Source is an ordered byte stream from the receiver. Read may return any
// number of bytes; frame boundaries are not preserved. Close must unblock a
// pending Read and be safe to call more than once.
type Source interface {
	Open() error
	Close() error
	Read(p []byte) (int, error)
	Name() string
}

var ErrClosed = errors.New("source closed")

// Open builds the source selected by cfg. The source is not connected until
// its Open method is called.
func Open(cfg config.Transport) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case config.TransportSerial:
		return NewSerial(cfg.Port, cfg.BaudRate), nil
	case config.TransportBluetooth:
		return NewBluetooth(cfg.Address, cfg.Channel)
	case config.TransportSimulator:
		return NewSimulator(SimulatorOptions{
			Sensors:  cfg.Sensors,
			Interval: cfg.Interval.Duration,
			Seed:     cfg.Seed,
		}), nil
	}
	return nil, errors.Errorf("unknown transport type %q", cfg.Type)
}

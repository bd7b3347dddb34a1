package tpms

import (
	"github.com/jd3nn1s/tpms/lemoncan"
)

// Forwarder passes sensor updates on to something outside the process. prev
// is the last record forwarded for the same sensor, nil the first time.
type Forwarder interface {
	Forward(cur *SensorRecord, prev *SensorRecord) error
	Name() string
}

type CANBus interface {
	Close() error
	SendTire(lemoncan.Tire) error
}

package tpms

import (
	"sync"

	"github.com/jd3nn1s/tpms/lemoncan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CANForwarder mirrors the tire slots on the dashboard CAN bus. Only sensors
// assigned to a position have a slot.
type CANForwarder struct {
	iface string

	mu  sync.Mutex
	bus CANBus
}

func NewCANForwarder(iface string) *CANForwarder {
	return &CANForwarder{
		iface: iface,
	}
}

func (fwd *CANForwarder) Name() string {
	return "canbus"
}

func (fwd *CANForwarder) Forward(cur *SensorRecord, prev *SensorRecord) error {
	var tires []lemoncan.Tire
	if prev != nil && prev.Position.Valid() && prev.Position != cur.Position {
		// the slot it left is empty now
		tires = append(tires, lemoncan.Tire{
			PositionIndex: prev.Position.Index(),
			Status:        uint8(StatusNoSignal),
		})
	}
	if cur.Position.Valid() && canChanged(cur, prev) {
		tires = append(tires, tireOf(cur))
	}
	if len(tires) == 0 {
		return nil
	}

	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	if fwd.bus == nil {
		bus, err := canBusConnect(fwd.iface)
		if err != nil {
			return errors.Wrapf(err, "unable to connect to CAN bus")
		}
		fwd.bus = bus
	}
	for _, t := range tires {
		if err := fwd.bus.SendTire(t); err != nil {
			// reconnect on the next update
			fwd.closeLocked()
			return errors.Wrapf(err, "unable to send tire to CAN bus")
		}
	}
	return nil
}

func (fwd *CANForwarder) Close() error {
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	return fwd.closeLocked()
}

func (fwd *CANForwarder) closeLocked() error {
	if fwd.bus == nil {
		return nil
	}
	err := fwd.bus.Close()
	if err != nil {
		log.WithField("err", err).Warn("unable to close canbus connection")
	}
	fwd.bus = nil
	return err
}

func canChanged(cur *SensorRecord, prev *SensorRecord) bool {
	return prev == nil ||
		prev.Position != cur.Position ||
		prev.PressurePSI != cur.PressurePSI ||
		prev.TemperatureF != cur.TemperatureF ||
		prev.Status != cur.Status
}

func tireOf(rec *SensorRecord) lemoncan.Tire {
	return lemoncan.Tire{
		PositionIndex: rec.Position.Index(),
		SensorID:      rec.ID,
		PressurePSI:   rec.PressurePSI,
		TemperatureF:  rec.TemperatureF,
		Status:        uint8(rec.Status),
		Alarm:         rec.IsAlarmCondition(),
	}
}

package forwarder

import (
	"github.com/jd3nn1s/tpms"
)

type Header struct {
	Type uint8
}

const (
	TypeSensor = 1
)

// SensorPacket follows the Header of a TypeSensor datagram, little endian.
type SensorPacket struct {
	SensorID     uint8
	Position     int8
	PressurePSI  uint8
	TemperatureF uint8
	Status       uint8
	Alarm        uint8
	// LastSignalAt in unix milliseconds
	LastSignalAt int64
}

func sensorPacket(rec *tpms.SensorRecord) SensorPacket {
	var alarm uint8
	if rec.IsAlarmCondition() {
		alarm = 1
	}
	return SensorPacket{
		SensorID:     rec.ID,
		Position:     int8(rec.Position),
		PressurePSI:  rec.PressurePSI,
		TemperatureF: rec.TemperatureF,
		Status:       uint8(rec.Status),
		Alarm:        alarm,
		LastSignalAt: rec.LastSignalAt.UnixNano() / 1e6,
	}
}

// alarmTransition reports whether cur entered or left an alarm condition
// relative to prev. A first record only counts when it alarms.
func alarmTransition(cur *tpms.SensorRecord, prev *tpms.SensorRecord) bool {
	if prev == nil {
		return cur.IsAlarmCondition()
	}
	return cur.IsAlarmCondition() != prev.IsAlarmCondition()
}

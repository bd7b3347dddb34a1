package tpms

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// absolute limits that apply regardless of the configured thresholds
	minSafePressure    = 15
	maxSafePressure    = 50
	minSafeTemperature = 32
	maxSafeTemperature = 120

	DefaultTargetPressure              = 32
	DefaultTargetTemperature           = 75
	DefaultPressureDeviationPercent    = 15.0
	DefaultTemperatureDeviationPercent = 20.0

	// DefaultSignalTimeout is how long a sensor may stay silent before it
	// is considered to have no signal.
	DefaultSignalTimeout = 30 * time.Second
)

type Position int8

const (
	Unassigned Position = iota - 1
	VehicleFrontLeft
	VehicleFrontRight
	VehicleRearLeft
	VehicleRearRight
	TrailerFrontLeft
	TrailerFrontRight
	TrailerRearLeft
	TrailerRearRight
)

// Positions lists the tire slots in display order.
var Positions = []Position{
	VehicleFrontLeft,
	VehicleFrontRight,
	VehicleRearLeft,
	VehicleRearRight,
	TrailerFrontLeft,
	TrailerFrontRight,
	TrailerRearLeft,
	TrailerRearRight,
}

var positionNames = map[Position][2]string{
	Unassigned:        {"Unassigned", "---"},
	VehicleFrontLeft:  {"Vehicle Front Left", "VFL"},
	VehicleFrontRight: {"Vehicle Front Right", "VFR"},
	VehicleRearLeft:   {"Vehicle Rear Left", "VRL"},
	VehicleRearRight:  {"Vehicle Rear Right", "VRR"},
	TrailerFrontLeft:  {"Trailer Front Left", "TFL"},
	TrailerFrontRight: {"Trailer Front Right", "TFR"},
	TrailerRearLeft:   {"Trailer Rear Left", "TRL"},
	TrailerRearRight:  {"Trailer Rear Right", "TRR"},
}

// Valid is true for the eight tire slots, false for Unassigned or anything
// out of range.
func (p Position) Valid() bool {
	return p >= VehicleFrontLeft && p <= TrailerRearRight
}

func (p Position) Index() int {
	if !p.Valid() {
		return -1
	}
	return int(p)
}

func (p Position) DisplayName() string {
	if n, ok := positionNames[p]; ok {
		return n[0]
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

func (p Position) ShortName() string {
	if n, ok := positionNames[p]; ok {
		return n[1]
	}
	return "---"
}

func (p Position) String() string {
	return p.ShortName()
}

// ParsePosition accepts a short name such as "VFL", case insensitive.
func ParsePosition(s string) (Position, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for p, n := range positionNames {
		if n[1] == s {
			return p, nil
		}
	}
	return Unassigned, errors.Wrapf(ErrInvalidPosition, "%q", s)
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.ShortName()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Status uint8

const (
	StatusNormal Status = iota
	StatusDormant
	StatusLowPressure
	StatusHighPressure
	StatusVeryHighPressure
	StatusColdTemperature
	StatusHotTemperature
	StatusOverheating
	// StatusNoSignal is never the result of classification; it is only
	// reported by EffectiveStatus for a sensor that went quiet.
	StatusNoSignal
)

var statusNames = [...]string{
	StatusNormal:           "Normal",
	StatusDormant:          "Dormant",
	StatusLowPressure:      "LowPressure",
	StatusHighPressure:     "HighPressure",
	StatusVeryHighPressure: "VeryHighPressure",
	StatusColdTemperature:  "ColdTemperature",
	StatusHotTemperature:   "HotTemperature",
	StatusOverheating:      "Overheating",
	StatusNoSignal:         "NoSignal",
}

var statusDescriptions = [...]string{
	StatusNormal:           "Normal",
	StatusDormant:          "Dormant (no pressure)",
	StatusLowPressure:      "Low pressure",
	StatusHighPressure:     "High pressure",
	StatusVeryHighPressure: "Very high pressure!",
	StatusColdTemperature:  "Cold",
	StatusHotTemperature:   "Hot",
	StatusOverheating:      "Overheating!",
	StatusNoSignal:         "No signal",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", s)
}

func (s Status) Description() string {
	if int(s) < len(statusDescriptions) {
		return statusDescriptions[s]
	}
	return "Unknown"
}

// IsAlarm is true for the statuses that should raise an alarm. High
// pressure and the temperature band statuses are shown but do not alarm.
func (s Status) IsAlarm() bool {
	return s == StatusLowPressure || s == StatusVeryHighPressure || s == StatusOverheating
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Thresholds is the target-and-deviation model a reading is classified
// against.
type Thresholds struct {
	TargetPressure              int     `json:"targetPressure"`
	TargetTemperature           int     `json:"targetTemperature"`
	PressureDeviationPercent    float64 `json:"pressureDeviationPercent"`
	TemperatureDeviationPercent float64 `json:"temperatureDeviationPercent"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TargetPressure:              DefaultTargetPressure,
		TargetTemperature:           DefaultTargetTemperature,
		PressureDeviationPercent:    DefaultPressureDeviationPercent,
		TemperatureDeviationPercent: DefaultTemperatureDeviationPercent,
	}
}

// Validate returns a *ThresholdError naming the first field out of range.
func (t Thresholds) Validate() error {
	checks := []struct {
		field    string
		value    float64
		min, max float64
	}{
		{"targetPressure", float64(t.TargetPressure), 10, 100},
		{"targetTemperature", float64(t.TargetTemperature), 0, 150},
		{"pressureDeviationPercent", t.PressureDeviationPercent, 1, 50},
		{"temperatureDeviationPercent", t.TemperatureDeviationPercent, 1, 50},
	}
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			return &ThresholdError{
				Field: c.field,
				Value: c.value,
				Min:   c.min,
				Max:   c.max,
			}
		}
	}
	return nil
}

func (t Thresholds) PressureMin() float64 {
	return float64(t.TargetPressure) * (1 - t.PressureDeviationPercent/100)
}

func (t Thresholds) PressureMax() float64 {
	return float64(t.TargetPressure) * (1 + t.PressureDeviationPercent/100)
}

func (t Thresholds) TemperatureMin() float64 {
	return float64(t.TargetTemperature) * (1 - t.TemperatureDeviationPercent/100)
}

func (t Thresholds) TemperatureMax() float64 {
	return float64(t.TargetTemperature) * (1 + t.TemperatureDeviationPercent/100)
}

// Classify derives a status from a reading. Pressure is checked entirely
// before temperature so a dangerous pressure is never masked, and the
// absolute limits come before the deviation bands.
func Classify(pressure, temperature uint8, t Thresholds) Status {
	p := float64(pressure)
	temp := float64(temperature)

	switch {
	case pressure == 0:
		return StatusDormant
	case pressure < minSafePressure:
		return StatusLowPressure
	case pressure > maxSafePressure:
		return StatusVeryHighPressure
	case p < t.PressureMin():
		return StatusLowPressure
	case p > t.PressureMax():
		return StatusHighPressure
	case temperature < minSafeTemperature:
		return StatusColdTemperature
	case temperature > maxSafeTemperature:
		return StatusOverheating
	case temp > t.TemperatureMax():
		return StatusHotTemperature
	case temp < t.TemperatureMin():
		return StatusColdTemperature
	}
	return StatusNormal
}

// SensorRecord is the latest known state of one sensor. Copies handed out by
// the Engine are snapshots; changing them has no effect on the Engine.
type SensorRecord struct {
	ID           uint8      `json:"id"`
	PressurePSI  uint8      `json:"pressurePsi"`
	TemperatureF uint8      `json:"temperatureF"`
	LastSignalAt time.Time  `json:"lastSignalAt"`
	Position     Position   `json:"position"`
	Status       Status     `json:"status"`
	Thresholds   Thresholds `json:"thresholds"`
}

func (r *SensorRecord) reclassify() {
	r.Status = Classify(r.PressurePSI, r.TemperatureF, r.Thresholds)
}

func (r SensorRecord) IsAlarmCondition() bool {
	return r.Status.IsAlarm()
}

func (r SensorRecord) HasRecentSignal(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.LastSignalAt) < timeout
}

func (r SensorRecord) IsStale(now time.Time, timeout time.Duration) bool {
	return !r.HasRecentSignal(now, timeout)
}

// EffectiveStatus is Status, or StatusNoSignal if nothing was heard from the
// sensor within timeout.
func (r SensorRecord) EffectiveStatus(now time.Time, timeout time.Duration) Status {
	if r.IsStale(now, timeout) {
		return StatusNoSignal
	}
	return r.Status
}

func (r SensorRecord) StatusDescription() string {
	return r.Status.Description()
}

// AnnouncementText is the sentence spoken or shown when the sensor alarms.
func (r SensorRecord) AnnouncementText() string {
	if r.Position == Unassigned {
		return fmt.Sprintf("Sensor %d pressure %d PSI temperature %d degrees",
			r.ID, r.PressurePSI, r.TemperatureF)
	}
	return fmt.Sprintf("%s pressure %d PSI temperature %d degrees",
		r.Position.DisplayName(), r.PressurePSI, r.TemperatureF)
}

package tpms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDefaults(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		pressure    uint8
		temperature uint8
		expected    Status
	}{
		{32, 75, StatusNormal},
		{0, 75, StatusDormant},
		{0, 200, StatusDormant},
		{14, 75, StatusLowPressure},
		{14, 200, StatusLowPressure},
		{55, 75, StatusVeryHighPressure},
		{51, 75, StatusVeryHighPressure},
		{50, 75, StatusHighPressure},
		{27, 75, StatusLowPressure},
		{36, 75, StatusNormal},
		{37, 75, StatusHighPressure},
		{37, 200, StatusHighPressure},
		{32, 31, StatusColdTemperature},
		{32, 121, StatusOverheating},
		{32, 91, StatusHotTemperature},
		{32, 59, StatusColdTemperature},
		{32, 60, StatusNormal},
		{32, 90, StatusNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Classify(tt.pressure, tt.temperature, th),
			"pressure %d temperature %d", tt.pressure, tt.temperature)
	}
}

func TestClassifyBandsInclusive(t *testing.T) {
	th := Thresholds{
		TargetPressure:              20,
		TargetTemperature:           60,
		PressureDeviationPercent:    50,
		TemperatureDeviationPercent: 50,
	}
	require.NoError(t, th.Validate())

	assert.Equal(t, StatusNormal, Classify(30, 60, th))
	assert.Equal(t, StatusHighPressure, Classify(31, 60, th))
	// the band would allow 10 but the absolute minimum does not
	assert.Equal(t, StatusNormal, Classify(15, 60, th))
	assert.Equal(t, StatusLowPressure, Classify(14, 60, th))

	assert.Equal(t, StatusNormal, Classify(20, 90, th))
	assert.Equal(t, StatusHotTemperature, Classify(20, 91, th))
	assert.Equal(t, StatusNormal, Classify(20, 32, th))
	assert.Equal(t, StatusColdTemperature, Classify(20, 31, th))
}

func TestStatusAlarms(t *testing.T) {
	alarms := map[Status]bool{
		StatusLowPressure:      true,
		StatusVeryHighPressure: true,
		StatusOverheating:      true,
	}
	for s := StatusNormal; s <= StatusNoSignal; s++ {
		assert.Equal(t, alarms[s], s.IsAlarm(), s.String())
	}
	assert.Equal(t, "Dormant (no pressure)", StatusDormant.Description())
	assert.Equal(t, "Very high pressure!", StatusVeryHighPressure.Description())
	assert.Equal(t, "Status(42)", Status(42).String())
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.TargetPressure = 200
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrThresholdOutOfRange))
	var te *ThresholdError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "targetPressure", te.Field)
	assert.Equal(t, 200.0, te.Value)

	bad = DefaultThresholds()
	bad.TemperatureDeviationPercent = 0.5
	assert.True(t, errors.Is(bad.Validate(), ErrThresholdOutOfRange))

	bad = DefaultThresholds()
	bad.TargetTemperature = -1
	assert.True(t, errors.Is(bad.Validate(), ErrThresholdOutOfRange))
}

func TestPositions(t *testing.T) {
	assert.Len(t, Positions, 8)
	for i, p := range Positions {
		assert.True(t, p.Valid())
		assert.Equal(t, i, p.Index())

		parsed, err := ParsePosition(p.ShortName())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	assert.False(t, Unassigned.Valid())
	assert.Equal(t, -1, Unassigned.Index())
	assert.False(t, Position(8).Valid())
	assert.Equal(t, "Vehicle Front Left", VehicleFrontLeft.DisplayName())

	p, err := ParsePosition(" trl ")
	require.NoError(t, err)
	assert.Equal(t, TrailerRearLeft, p)

	_, err = ParsePosition("XYZ")
	assert.True(t, errors.Is(err, ErrInvalidPosition))
}

func TestRecordJSON(t *testing.T) {
	rec := SensorRecord{
		ID:           3,
		PressurePSI:  14,
		TemperatureF: 70,
		Position:     VehicleRearRight,
		Status:       StatusLowPressure,
		Thresholds:   DefaultThresholds(),
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "VRR", m["position"])
	assert.Equal(t, "LowPressure", m["status"])
	assert.Equal(t, 3.0, m["id"])
}

func TestRecordStaleness(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := SensorRecord{
		LastSignalAt: now.Add(-10 * time.Second),
		Status:       StatusOverheating,
	}
	assert.True(t, rec.HasRecentSignal(now, DefaultSignalTimeout))
	assert.False(t, rec.IsStale(now, DefaultSignalTimeout))
	assert.Equal(t, StatusOverheating, rec.EffectiveStatus(now, DefaultSignalTimeout))
	assert.True(t, rec.IsAlarmCondition())

	later := now.Add(DefaultSignalTimeout)
	assert.True(t, rec.IsStale(later, DefaultSignalTimeout))
	assert.Equal(t, StatusNoSignal, rec.EffectiveStatus(later, DefaultSignalTimeout))
	// staleness never rewrites the classified status
	assert.Equal(t, StatusOverheating, rec.Status)
}

func TestAnnouncementText(t *testing.T) {
	rec := SensorRecord{
		ID:           7,
		PressurePSI:  12,
		TemperatureF: 80,
		Position:     Unassigned,
	}
	assert.Equal(t, "Sensor 7 pressure 12 PSI temperature 80 degrees", rec.AnnouncementText())

	rec.Position = TrailerFrontRight
	assert.Equal(t, "Trailer Front Right pressure 12 PSI temperature 80 degrees", rec.AnnouncementText())
}

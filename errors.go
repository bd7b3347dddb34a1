package tpms

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnknownSensor       = errors.New("unknown sensor")
	ErrInvalidPosition     = errors.New("invalid tire position")
	ErrThresholdOutOfRange = errors.New("threshold out of range")
)

// ThresholdError names the threshold field that failed validation.
type ThresholdError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%s: %s %g not in [%g, %g]",
		ErrThresholdOutOfRange, e.Field, e.Value, e.Min, e.Max)
}

func (e *ThresholdError) Is(target error) bool {
	return target == ErrThresholdOutOfRange
}

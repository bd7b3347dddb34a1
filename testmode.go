package tpms

import (
	"github.com/jd3nn1s/tpms/transport"
)

// SetTestMode replaces the receiver with simulated sensors. It must be called
// before Run.
func (m *Monitor) SetTestMode(opts transport.SimulatorOptions) {
	m.source = transport.NewSimulator(opts)
}

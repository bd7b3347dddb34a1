package tpms

import (
	"github.com/jd3nn1s/tpms/lemoncan"
)

// to allow testing
var canBusConnect = func(iface string) (CANBus, error) {
	return lemoncan.Connect(iface)
}

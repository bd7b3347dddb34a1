package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jd3nn1s/tpms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPForwarder(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		log.Fatal(err)
	}
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)
	cfg := fmt.Sprintf(`
Server = "127.0.0.1"
Port = %d
`, udpAddr.Port)

	udp, err := NewUDPForwarderFromReader(bytes.NewBufferString(cfg))
	require.NoError(t, err)
	defer udp.Close()
	assert.Equal(t, "udp", udp.Name())

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first := tpms.SensorRecord{ID: 4, PressurePSI: 30, TemperatureF: 70, LastSignalAt: at}
	latest := tpms.SensorRecord{
		ID:           4,
		PressurePSI:  12,
		TemperatureF: 71,
		Position:     tpms.VehicleRearLeft,
		Status:       tpms.StatusLowPressure,
		LastSignalAt: at,
	}
	// only the latest state of a sensor is sent per flush
	assert.NoError(t, udp.Forward(&first, nil))
	assert.NoError(t, udp.Forward(&latest, &first))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = udp.Start(ctx)
	}()

	buffer := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second*3)))
	n, _, err := pc.ReadFrom(buffer)
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	hdr := Header{}
	pkt := SensorPacket{}
	rdr := bytes.NewReader(buffer[:n])
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &pkt))
	assert.Equal(t, uint8(TypeSensor), hdr.Type)
	assert.Equal(t, SensorPacket{
		SensorID:     4,
		Position:     int8(tpms.VehicleRearLeft),
		PressurePSI:  12,
		TemperatureF: 71,
		Status:       uint8(tpms.StatusLowPressure),
		Alarm:        1,
		LastSignalAt: at.UnixNano() / 1e6,
	}, pkt)

	// nothing pending, nothing sent
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = pc.ReadFrom(buffer)
	assert.Error(t, err)
}

func TestUDPForwarderBadConfig(t *testing.T) {
	_, err := NewUDPForwarderFromReader(bytes.NewBufferString(`Port = "x"`))
	assert.Error(t, err)
}

func TestUDPForwarderFromFile(t *testing.T) {
	cfg := []byte("Server = \"127.0.0.1\"\nPort = 9901\n")

	abs := filepath.Join(t.TempDir(), "udpforwarder.toml")
	require.NoError(t, os.WriteFile(abs, cfg, 0o600))
	udp, err := NewUDPForwarder(abs)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", udp.Config.Server)
	assert.Equal(t, 9901, udp.Config.Port)
	assert.NoError(t, udp.Close())

	// relative names resolve next to the binary
	binDir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	require.NoError(t, err)
	rel := "udpforwarder-test.toml"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, rel), cfg, 0o600))
	defer os.Remove(filepath.Join(binDir, rel))
	udp, err = NewUDPForwarder(rel)
	require.NoError(t, err)
	assert.Equal(t, 9901, udp.Config.Port)
	assert.NoError(t, udp.Close())

	_, err = NewUDPForwarder(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestAlarmTransition(t *testing.T) {
	normal := tpms.SensorRecord{Status: tpms.StatusNormal}
	high := tpms.SensorRecord{Status: tpms.StatusHighPressure}
	low := tpms.SensorRecord{Status: tpms.StatusLowPressure}
	hot := tpms.SensorRecord{Status: tpms.StatusOverheating}

	assert.False(t, alarmTransition(&normal, nil))
	assert.True(t, alarmTransition(&low, nil))
	assert.True(t, alarmTransition(&low, &normal))
	assert.True(t, alarmTransition(&normal, &low))
	assert.False(t, alarmTransition(&hot, &low))
	assert.False(t, alarmTransition(&high, &normal))
}

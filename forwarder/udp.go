package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/BurntSushi/toml"
	"github.com/jd3nn1s/tpms"
	"github.com/jd3nn1s/tpms/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var maxPacketSize = int(unsafe.Sizeof(Header{}) + unsafe.Sizeof(SensorPacket{}))

const udpFlushInterval = 100 * time.Millisecond

// UDPForwarder sends the latest state of every updated sensor to a server,
// at most once per flush interval per sensor.
type UDPForwarder struct {
	Config *config.UDP

	conn net.Conn

	mu      sync.Mutex
	pending map[uint8]tpms.SensorRecord
}

// NewUDPForwarder loads its configuration from a TOML file. A relative
// fileName is resolved next to the binary.
func NewUDPForwarder(fileName string) (*UDPForwarder, error) {
	path := fileName
	if !filepath.IsAbs(path) {
		dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to determine binary location")
		}
		path = filepath.Join(dir, fileName)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewUDPForwarderFromReader(file)
}

func NewUDPForwarderFromReader(configReader io.Reader) (*UDPForwarder, error) {
	configData, err := ioutil.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	cfg := config.UDP{}
	if _, err := toml.Decode(string(configData), &cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to load udp forwarder configuration")
	}
	return NewUDPForwarderFromConfig(cfg)
}

func NewUDPForwarderFromConfig(cfg config.UDP) (*UDPForwarder, error) {
	udp := &UDPForwarder{
		Config:  &cfg,
		pending: make(map[uint8]tpms.SensorRecord),
	}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Name() string {
	return "udp"
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

func (udp *UDPForwarder) Forward(cur *tpms.SensorRecord, prev *tpms.SensorRecord) error {
	udp.mu.Lock()
	// newer state replaces anything not yet flushed
	udp.pending[cur.ID] = *cur
	udp.mu.Unlock()
	return nil
}

func (udp *UDPForwarder) Start(ctx context.Context) error {
	ticker := time.NewTicker(udpFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := udp.flush(); err != nil {
				log.Error("unable to forward sensors to server ", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) flush() error {
	udp.mu.Lock()
	recs := make([]tpms.SensorRecord, 0, len(udp.pending))
	for _, rec := range udp.pending {
		recs = append(recs, rec)
	}
	udp.pending = make(map[uint8]tpms.SensorRecord)
	udp.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID < recs[j].ID
	})
	for i := range recs {
		if err := udp.forward(&recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (udp *UDPForwarder) forward(rec *tpms.SensorRecord) error {
	buf := bytes.NewBuffer([]byte{})
	hdr := Header{
		Type: TypeSensor,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "unable to write udp packet header")
	}
	pkt := sensorPacket(rec)
	if err := binary.Write(buf, binary.LittleEndian, &pkt); err != nil {
		return errors.Wrap(err, "unable to write sensor udp packet")
	}
	_, err := udp.conn.Write(buf.Bytes())
	return err
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxPacketSize * 16

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return err
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}

package tpms

import (
	"context"
	"time"

	"github.com/jd3nn1s/tpms/frame"
	"github.com/jd3nn1s/tpms/metrics"
	"github.com/jd3nn1s/tpms/transport"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	readBufferSize = 256
	// a global threshold update publishes one event per possible sensor id
	eventBufferSize = 256 + 64
)

type Callbacks struct {
	Connected    func(source string)
	Disconnected func(source string)
}

type Options struct {
	// BufferCapacity of the frame decoder in bytes, 0 for the default.
	BufferCapacity int
	Metrics        *metrics.Metrics
	Callbacks      Callbacks
}

// Monitor reads the receiver's byte stream, feeds validated readings to the
// Engine and hands every sensor update to the registered forwarders.
type Monitor struct {
	engine  *Engine
	source  transport.Source
	decoder *frame.Decoder
	metrics *metrics.Metrics
	cb      Callbacks

	forwarders []Forwarder
	last       map[uint8]SensorRecord
}

func NewMonitor(engine *Engine, source transport.Source, opts Options) *Monitor {
	m := &Monitor{
		engine:  engine,
		source:  source,
		metrics: opts.Metrics,
		cb:      opts.Callbacks,
		last:    make(map[uint8]SensorRecord),
	}
	m.decoder = frame.NewDecoder(opts.BufferCapacity, frame.Callbacks{
		Frame: func(frame.Frame) {
			m.metrics.FrameDecoded()
		},
		ChecksumInvalid: m.checksumInvalid,
		Overflow:        m.overflow,
		Noise:           m.metrics.Noise,
	})
	m.metrics.WatchDroppedEvents(func() float64 {
		return float64(engine.DroppedEvents())
	})
	return m
}

func (m *Monitor) Engine() *Engine {
	return m.engine
}

func (m *Monitor) AddForwarder(f Forwarder) {
	m.forwarders = append(m.forwarders, f)
}

// Run reads from the source until ctx is done, reconnecting as needed.
func (m *Monitor) Run(ctx context.Context) error {
	if m.source == nil {
		return errors.New("no byte source configured")
	}
	events, unsubscribe := m.engine.Subscribe(eventBufferSize)
	defer unsubscribe()

	errChan := make(chan error, 1)
	go func() {
		errChan <- retry(ctx, &sourceReader{m: m})
	}()

	for {
		select {
		case ev := <-events:
			m.handleEvent(ev)
		case err := <-errChan:
			return err
		}
	}
}

// feed runs on the reader goroutine only.
func (m *Monitor) feed(p []byte) {
	m.metrics.BytesReceived(len(p))
	for _, r := range m.decoder.Feed(p) {
		m.engine.Ingest(r)
	}
}

func (m *Monitor) checksumInvalid(f frame.Frame) {
	m.metrics.ChecksumInvalid()
	m.engine.publish(Event{
		Kind:  EventChecksumInvalid,
		At:    time.Now(),
		Frame: f,
	})
}

func (m *Monitor) overflow(discarded int) {
	m.metrics.BufferOverflow()
	m.engine.publish(Event{
		Kind:      EventBufferOverflow,
		At:        time.Now(),
		Discarded: discarded,
	})
}

func (m *Monitor) handleEvent(ev Event) {
	if ev.Kind.IsDiagnostic() {
		return
	}
	cur := ev.Record
	prev, seen := m.last[cur.ID]
	m.last[cur.ID] = cur

	prevPosition := ""
	if seen {
		prevPosition = prev.Position.ShortName()
	}
	m.metrics.ObserveSensor(cur.ID, cur.Position.ShortName(), prevPosition,
		cur.PressurePSI, cur.TemperatureF, cur.IsAlarmCondition())
	m.metrics.SensorsKnown(m.engine.Len())

	var prevPtr *SensorRecord
	if seen {
		prevPtr = &prev
	}
	for _, f := range m.forwarders {
		if err := f.Forward(&cur, prevPtr); err != nil {
			m.metrics.ForwardError(f.Name())
			log.WithField("err", err).
				WithField("sensorID", cur.ID).
				Warnf("%s: unable to forward sensor update", f.Name())
		}
	}
}

// sourceReader adapts the byte source to the retry loop.
type sourceReader struct {
	m      *Monitor
	opened bool
}

func (s *sourceReader) Name() string {
	return s.m.source.Name()
}

func (s *sourceReader) Open() error {
	if err := s.m.source.Open(); err != nil {
		return err
	}
	// bytes from a previous connection can never complete a frame
	s.m.decoder.Reset()
	if s.opened {
		s.m.metrics.Reconnect(s.Name())
	}
	s.opened = true
	if s.m.cb.Connected != nil {
		s.m.cb.Connected(s.Name())
	}
	return nil
}

func (s *sourceReader) Close() error {
	err := s.m.source.Close()
	if s.m.cb.Disconnected != nil {
		s.m.cb.Disconnected(s.Name())
	}
	return err
}

func (s *sourceReader) Start(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// unblocks the pending Read
			if err := s.m.source.Close(); err != nil {
				log.WithField("err", err).Warnf("%s: unable to close after context", s.Name())
			}
		case <-done:
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.m.source.Read(buf)
		if n > 0 {
			s.m.feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "%s: read failed", s.Name())
		}
	}
}

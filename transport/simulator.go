package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jd3nn1s/tpms/frame"
)

type SimulatorOptions struct {
	Sensors  int
	Interval time.Duration
	Seed     int64
	// NoiseEvery injects a burst of garbage every n frames, 0 disables it.
	NoiseEvery int
	// CorruptEvery breaks the checksum of every n-th frame, 0 disables it.
	CorruptEvery int
}

type simSensor struct {
	id          uint8
	pressure    uint8
	temperature uint8
	down        bool
}

// Simulator produces a frame stream for a set of fake sensors, chopped into
// random chunk sizes with occasional noise, for running without hardware.
type Simulator struct {
	opts SimulatorOptions

	mu      sync.Mutex
	rnd     *rand.Rand
	sensors []simSensor
	next    int
	count   int
	pending []byte
	stop    chan struct{}
}

func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Sensors <= 0 {
		opts.Sensors = 4
	}
	if opts.Sensors > 255 {
		opts.Sensors = 255
	}
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	return &Simulator{opts: opts}
}

func (s *Simulator) Name() string {
	return "simulator"
}

func (s *Simulator) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = rand.New(rand.NewSource(s.opts.Seed))
	s.sensors = make([]simSensor, s.opts.Sensors)
	for i := range s.sensors {
		s.sensors[i] = simSensor{
			id:          uint8(i + 1),
			pressure:    uint8(28 + i%8),
			temperature: uint8(60 + 5*(i%8)),
		}
	}
	s.next = 0
	s.count = 0
	s.pending = nil
	s.stop = make(chan struct{})
	return nil
}

// Read blocks for one interval and then returns a random sized chunk of the
// generated stream.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop == nil {
		return 0, ErrClosed
	}

	select {
	case <-stop:
		return 0, ErrClosed
	case <-time.After(s.opts.Interval):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return 0, ErrClosed
	}
	for len(s.pending) < frame.Length {
		s.generate()
	}
	n := s.rnd.Intn(len(s.pending)) + 1
	if n > len(p) {
		n = len(p)
	}
	copy(p, s.pending[:n])
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

func (s *Simulator) generate() {
	s.count++
	if s.opts.NoiseEvery > 0 && s.count%s.opts.NoiseEvery == 0 {
		noise := make([]byte, s.rnd.Intn(6)+1)
		s.rnd.Read(noise)
		s.pending = append(s.pending, noise...)
	}

	sn := &s.sensors[s.next]
	s.next = (s.next + 1) % len(s.sensors)

	f := frame.New(sn.id, sn.pressure, sn.temperature)
	if s.opts.CorruptEvery > 0 && s.count%s.opts.CorruptEvery == 0 {
		f[frame.Length-1] ^= 0xFF
	}
	s.pending = append(s.pending, f[:]...)

	if sn.down {
		sn.pressure--
		sn.temperature -= 5
	} else {
		sn.pressure++
		sn.temperature += 5
	}
	if sn.temperature >= 125 || sn.pressure >= 52 {
		sn.down = true
	} else if sn.temperature <= 30 || sn.pressure <= 12 {
		sn.down = false
	}
}

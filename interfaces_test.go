package tpms

import (
	"sync"

	"github.com/jd3nn1s/tpms/lemoncan"
	"github.com/jd3nn1s/tpms/transport"
)

type sourceStub struct {
	readChan chan []byte
	errChan  chan error

	mu        sync.Mutex
	opened    int
	openErrs  []error
	closeChan chan struct{}
}

func createSourceStub() *sourceStub {
	return &sourceStub{
		readChan: make(chan []byte),
		errChan:  make(chan error),
	}
}

func (s *sourceStub) Name() string {
	return "source-test"
}

func (s *sourceStub) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.openErrs) > 0 {
		err := s.openErrs[0]
		s.openErrs = s.openErrs[1:]
		return err
	}
	s.opened++
	s.closeChan = make(chan struct{})
	return nil
}

func (s *sourceStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeChan != nil {
		close(s.closeChan)
		s.closeChan = nil
	}
	return nil
}

func (s *sourceStub) Read(p []byte) (int, error) {
	s.mu.Lock()
	closeChan := s.closeChan
	s.mu.Unlock()
	if closeChan == nil {
		return 0, transport.ErrClosed
	}

	select {
	case b := <-s.readChan:
		return copy(p, b), nil
	case err := <-s.errChan:
		return 0, err
	case <-closeChan:
		return 0, transport.ErrClosed
	}
}

func (s *sourceStub) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type forwardCall struct {
	cur  SensorRecord
	prev *SensorRecord
}

type forwarderStub struct {
	calls chan forwardCall
	err   error
}

func createForwarderStub() *forwarderStub {
	return &forwarderStub{
		calls: make(chan forwardCall, 16),
	}
}

func (fwd *forwarderStub) Name() string {
	return "forwarder-test"
}

func (fwd *forwarderStub) Forward(cur *SensorRecord, prev *SensorRecord) error {
	call := forwardCall{cur: *cur}
	if prev != nil {
		p := *prev
		call.prev = &p
	}
	fwd.calls <- call
	return fwd.err
}

type canBusStub struct {
	tires   []lemoncan.Tire
	sendErr error
	closed  bool
}

func (c *canBusStub) Close() error {
	c.closed = true
	return nil
}

func (c *canBusStub) SendTire(t lemoncan.Tire) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.tires = append(c.tires, t)
	return nil
}

package tpms

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jd3nn1s/tpms/frame"
)

type EventKind uint8

const (
	EventDiscovered EventKind = iota + 1
	EventUpdated
	EventAssigned
	EventThresholds
	EventChecksumInvalid
	EventBufferOverflow
)

var eventKindNames = map[EventKind]string{
	EventDiscovered:      "discovered",
	EventUpdated:         "updated",
	EventAssigned:        "assigned",
	EventThresholds:      "thresholds",
	EventChecksumInvalid: "checksum-invalid",
	EventBufferOverflow:  "buffer-overflow",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// IsDiagnostic is true for events that carry no sensor data.
func (k EventKind) IsDiagnostic() bool {
	return k == EventChecksumInvalid || k == EventBufferOverflow
}

type Event struct {
	Kind EventKind
	At   time.Time

	// Record is set for every non diagnostic event.
	Record SensorRecord

	// Frame is the rejected frame for EventChecksumInvalid.
	Frame frame.Frame
	// Discarded is the number of bytes dropped for EventBufferOverflow.
	Discarded int
}

// broker fans events out to subscribers without ever blocking the publisher.
type broker struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped uint64
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

func (b *broker) droppedCount() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

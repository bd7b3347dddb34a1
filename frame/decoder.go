package frame

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity holds a handful of frames, the same as the receiver's
	// own packet buffer.
	DefaultCapacity = Length * 4

	syncLength = 3
)

type Callbacks struct {
	// Frame is called for every frame that passes the checksum.
	Frame func(Frame)
	// ChecksumInvalid is called for a frame whose sync matched but whose
	// checksum did not. The frame is dropped.
	ChecksumInvalid func(Frame)
	// Overflow is called when the buffer could not make progress and was
	// reset, with the number of bytes discarded.
	Overflow func(discarded int)
	// Noise is called with the number of bytes skipped while resynchronizing.
	Noise func(n int)
}

type Stats struct {
	Bytes           uint64
	Frames          uint64
	ChecksumInvalid uint64
	Overflows       uint64
	NoiseBytes      uint64
}

// Decoder turns an arbitrarily chunked byte stream into validated readings.
// It has a single writer; Feed must not be called concurrently.
type Decoder struct {
	buf      []byte
	capacity int
	cb       Callbacks
	stats    Stats

	// to allow testing
	now func() time.Time
}

func NewDecoder(capacity int, cb Callbacks) *Decoder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity < Length {
		capacity = Length
	}
	return &Decoder{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
		cb:       cb,
		now:      time.Now,
	}
}

// Feed appends p to the buffer and returns the readings completed by it, in
// arrival order. A partial frame at the tail is held for the next call.
func (d *Decoder) Feed(p []byte) []Reading {
	var readings []Reading
	d.stats.Bytes += uint64(len(p))
	for len(p) > 0 {
		if len(d.buf) == d.capacity {
			readings = d.scan(readings)
			if len(d.buf) == d.capacity {
				d.overflow()
			}
		}
		n := copy(d.buf[len(d.buf):d.capacity], p)
		d.buf = d.buf[:len(d.buf)+n]
		p = p[n:]
	}
	return d.scan(readings)
}

// Reset discards any buffered bytes, e.g. after the transport reconnected.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Buffered returns the number of bytes waiting for more input.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) scan(readings []Reading) []Reading {
	start := 0
	for {
		i := d.findSync(start)
		if i < 0 {
			// only the last syncLength-1 bytes can still begin a sync
			if keep := len(d.buf) - (syncLength - 1); keep > start {
				d.noise(keep - start)
				start = keep
			}
			break
		}
		if i > start {
			d.noise(i - start)
		}
		start = i
		if len(d.buf)-i < Length {
			break
		}

		var f Frame
		copy(f[:], d.buf[i:i+Length])
		// a false sync match still consumes a whole frame
		start = i + Length

		if !f.Valid() {
			d.stats.ChecksumInvalid++
			log.WithField("frame", f.String()).Debug("dropping frame with invalid checksum")
			if d.cb.ChecksumInvalid != nil {
				d.cb.ChecksumInvalid(f)
			}
			continue
		}

		d.stats.Frames++
		if d.cb.Frame != nil {
			d.cb.Frame(f)
		}
		readings = append(readings, f.Reading(d.now()))
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	return readings
}

func (d *Decoder) findSync(from int) int {
	for i := from; i+syncLength <= len(d.buf); i++ {
		if isSync(d.buf, i) {
			return i
		}
	}
	return -1
}

func (d *Decoder) overflow() {
	discarded := len(d.buf)
	d.buf = d.buf[:0]
	d.stats.Overflows++
	log.WithField("discarded", discarded).Warn("frame buffer overflow, resetting")
	if d.cb.Overflow != nil {
		d.cb.Overflow(discarded)
	}
}

func (d *Decoder) noise(n int) {
	d.stats.NoiseBytes += uint64(n)
	if d.cb.Noise != nil {
		d.cb.Noise(n)
	}
}

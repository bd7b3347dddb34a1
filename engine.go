package tpms

import (
	"sync"
	"time"

	"github.com/jd3nn1s/tpms/frame"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Engine owns the record of every sensor seen on the stream. It is safe for
// concurrent use; callers only ever receive copies.
type Engine struct {
	mu        sync.RWMutex
	records   map[uint8]*SensorRecord
	positions map[Position]uint8
	defaults  Thresholds

	events broker
}

func NewEngine(defaults Thresholds) (*Engine, error) {
	if err := defaults.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid default thresholds")
	}
	return &Engine{
		records:   make(map[uint8]*SensorRecord),
		positions: make(map[Position]uint8),
		defaults:  defaults,
	}, nil
}

// Ingest applies a validated reading and returns the updated record. created
// is true the first time the sensor id is seen.
func (e *Engine) Ingest(r frame.Reading) (rec SensorRecord, created bool) {
	e.mu.Lock()
	cur, ok := e.records[r.SensorID]
	if !ok {
		cur = &SensorRecord{
			ID:         r.SensorID,
			Position:   Unassigned,
			Thresholds: e.defaults,
		}
		e.records[r.SensorID] = cur
	}
	cur.PressurePSI = r.PressurePSI
	cur.TemperatureF = r.TemperatureF
	cur.LastSignalAt = r.ReceivedAt
	cur.reclassify()
	rec = *cur

	kind := EventUpdated
	if !ok {
		kind = EventDiscovered
	}
	e.events.publish(Event{
		Kind:   kind,
		At:     r.ReceivedAt,
		Record: rec,
	})
	e.mu.Unlock()

	if !ok {
		log.WithField("sensorID", rec.ID).
			WithField("pressure", rec.PressurePSI).
			WithField("temperature", rec.TemperatureF).
			Info("new TPMS sensor discovered")
	}
	return rec, !ok
}

func (e *Engine) Get(id uint8) (SensorRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	if !ok {
		return SensorRecord{}, false
	}
	return *rec, true
}

func (e *Engine) GetAll() map[uint8]SensorRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := make(map[uint8]SensorRecord, len(e.records))
	for id, rec := range e.records {
		all[id] = *rec
	}
	return all
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// AssignedSensors returns the records currently occupying a tire position.
func (e *Engine) AssignedSensors() map[Position]SensorRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	assigned := make(map[Position]SensorRecord, len(e.positions))
	for pos, id := range e.positions {
		assigned[pos] = *e.records[id]
	}
	return assigned
}

// Assign moves a sensor to pos. Whichever sensor held pos before is left
// unassigned, as is the sensor's own previous position.
func (e *Engine) Assign(id uint8, pos Position) error {
	if !pos.Valid() {
		return errors.Wrapf(ErrInvalidPosition, "position %d", int(pos))
	}

	e.mu.Lock()
	rec, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(ErrUnknownSensor, "sensor %d", id)
	}
	var displaced *SensorRecord
	if prevID, held := e.positions[pos]; held && prevID != id {
		displaced = e.records[prevID]
		displaced.Position = Unassigned
	}
	if rec.Position.Valid() {
		delete(e.positions, rec.Position)
	}
	rec.Position = pos
	e.positions[pos] = id

	now := time.Now()
	if displaced != nil {
		e.events.publish(Event{Kind: EventAssigned, At: now, Record: *displaced})
	}
	e.events.publish(Event{Kind: EventAssigned, At: now, Record: *rec})
	e.mu.Unlock()

	log.WithField("sensorID", id).
		WithField("position", pos.DisplayName()).
		Info("sensor assigned")
	return nil
}

// Unassign removes a sensor from its position, if it has one.
func (e *Engine) Unassign(id uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return errors.Wrapf(ErrUnknownSensor, "sensor %d", id)
	}
	if !rec.Position.Valid() {
		return nil
	}
	delete(e.positions, rec.Position)
	rec.Position = Unassigned
	e.events.publish(Event{Kind: EventAssigned, At: time.Now(), Record: *rec})
	return nil
}

// Thresholds returns the thresholds given to newly discovered sensors.
func (e *Engine) Thresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// UpdateThresholds replaces the thresholds of one sensor and reclassifies it.
func (e *Engine) UpdateThresholds(id uint8, t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return errors.Wrapf(ErrUnknownSensor, "sensor %d", id)
	}
	rec.Thresholds = t
	rec.reclassify()
	e.events.publish(Event{Kind: EventThresholds, At: time.Now(), Record: *rec})
	return nil
}

// UpdateGlobalThresholds replaces the default thresholds and applies them to
// every known sensor.
func (e *Engine) UpdateGlobalThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.defaults = t
	now := time.Now()
	for _, rec := range e.records {
		rec.Thresholds = t
		rec.reclassify()
		e.events.publish(Event{Kind: EventThresholds, At: now, Record: *rec})
	}
	e.mu.Unlock()

	log.WithField("thresholds", t).Info("thresholds updated")
	return nil
}

// Subscribe returns a channel receiving every event published after the
// call. Events are published under the engine lock, so per sensor they
// arrive in the order the changes were applied. Events are dropped for a
// subscriber whose buffer is full. The
// returned func unsubscribes and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// DroppedEvents counts events lost to full subscriber buffers.
func (e *Engine) DroppedEvents() uint64 {
	return e.events.droppedCount()
}

func (e *Engine) publish(ev Event) {
	e.events.publish(ev)
}

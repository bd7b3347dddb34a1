// Package httpapi exposes the sensor state over HTTP for dashboards and
// for assigning sensors to tire positions.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jd3nn1s/tpms"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Store is the part of the engine the API needs.
type Store interface {
	Len() int
	Get(id uint8) (tpms.SensorRecord, bool)
	GetAll() map[uint8]tpms.SensorRecord
	AssignedSensors() map[tpms.Position]tpms.SensorRecord
	Assign(id uint8, pos tpms.Position) error
	Unassign(id uint8) error
	Thresholds() tpms.Thresholds
	UpdateThresholds(id uint8, t tpms.Thresholds) error
	UpdateGlobalThresholds(t tpms.Thresholds) error
}

type Server struct {
	store         Store
	signalTimeout time.Duration
	metrics       http.Handler

	now func() time.Time
}

type sensorView struct {
	tpms.SensorRecord
	EffectiveStatus tpms.Status `json:"effectiveStatus"`
	Description     string      `json:"description"`
	Alarm           bool        `json:"alarm"`
	Stale           bool        `json:"stale"`
	Announcement    string      `json:"announcement"`
}

type positionView struct {
	Position tpms.Position `json:"position"`
	Name     string        `json:"name"`
	Sensor   *sensorView   `json:"sensor"`
}

type positionRequest struct {
	Position tpms.Position `json:"position"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// NewServer creates the API. metrics may be nil to leave /metrics out.
func NewServer(store Store, signalTimeout time.Duration, metrics http.Handler) *Server {
	if signalTimeout <= 0 {
		signalTimeout = tpms.DefaultSignalTimeout
	}
	return &Server{
		store:         store,
		signalTimeout: signalTimeout,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/sensors", s.listSensors).Methods("GET")
	r.HandleFunc("/sensors/{id}", s.getSensor).Methods("GET")
	r.HandleFunc("/sensors/{id}/position", s.assign).Methods("PUT")
	r.HandleFunc("/sensors/{id}/position", s.unassign).Methods("DELETE")
	r.HandleFunc("/sensors/{id}/thresholds", s.updateSensorThresholds).Methods("PUT")
	r.HandleFunc("/thresholds", s.getThresholds).Methods("GET")
	r.HandleFunc("/thresholds", s.updateThresholds).Methods("PUT")
	r.HandleFunc("/positions", s.listPositions).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}

	return r
}

// Handler is the router wrapped with request logging and panic recovery.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(accessLog, s.Router()))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"sensors": s.store.Len(),
	})
}

func (s *Server) listSensors(w http.ResponseWriter, _ *http.Request) {
	all := s.store.GetAll()
	now := s.now()
	views := make([]sensorView, 0, len(all))
	for _, rec := range all {
		views = append(views, s.view(rec, now))
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].ID < views[j].ID
	})
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}
	rec, found := s.store.Get(id)
	if !found {
		writeError(w, errors.Wrapf(tpms.ErrUnknownSensor, "sensor %d", id))
		return
	}
	writeJSON(w, http.StatusOK, s.view(rec, s.now()))
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}
	req := positionRequest{Position: tpms.Unassigned}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, tpms.ErrInvalidPosition) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.store.Assign(id, req.Position); err != nil {
		writeError(w, err)
		return
	}
	s.writeSensor(w, id)
}

func (s *Server) unassign(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}
	if err := s.store.Unassign(id); err != nil {
		writeError(w, err)
		return
	}
	s.writeSensor(w, id)
}

func (s *Server) updateSensorThresholds(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}
	rec, found := s.store.Get(id)
	if !found {
		writeError(w, errors.Wrapf(tpms.ErrUnknownSensor, "sensor %d", id))
		return
	}
	// fields left out of the body keep their current value
	t := rec.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.store.UpdateThresholds(id, t); err != nil {
		writeError(w, err)
		return
	}
	s.writeSensor(w, id)
}

func (s *Server) getThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Thresholds())
}

func (s *Server) updateThresholds(w http.ResponseWriter, r *http.Request) {
	t := s.store.Thresholds()
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.store.UpdateGlobalThresholds(t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Thresholds())
}

func (s *Server) listPositions(w http.ResponseWriter, _ *http.Request) {
	assigned := s.store.AssignedSensors()
	now := s.now()
	views := make([]positionView, 0, len(tpms.Positions))
	for _, pos := range tpms.Positions {
		pv := positionView{
			Position: pos,
			Name:     pos.DisplayName(),
		}
		if rec, ok := assigned[pos]; ok {
			v := s.view(rec, now)
			pv.Sensor = &v
		}
		views = append(views, pv)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) writeSensor(w http.ResponseWriter, id uint8) {
	rec, found := s.store.Get(id)
	if !found {
		writeError(w, errors.Wrapf(tpms.ErrUnknownSensor, "sensor %d", id))
		return
	}
	writeJSON(w, http.StatusOK, s.view(rec, s.now()))
}

func (s *Server) view(rec tpms.SensorRecord, now time.Time) sensorView {
	return sensorView{
		SensorRecord:    rec,
		EffectiveStatus: rec.EffectiveStatus(now, s.signalTimeout),
		Description:     rec.StatusDescription(),
		Alarm:           rec.IsAlarmCondition(),
		Stale:           rec.IsStale(now, s.signalTimeout),
		Announcement:    rec.AnnouncementText(),
	}
}

func sensorID(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "sensor id must be 0-255, got " + strconv.Quote(raw),
		})
		return 0, false
	}
	return uint8(id), true
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	var te *tpms.ThresholdError
	switch {
	case errors.Is(err, tpms.ErrUnknownSensor):
		status = http.StatusNotFound
	case errors.Is(err, tpms.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.As(err, &te):
		status = http.StatusUnprocessableEntity
		resp.Field = te.Field
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("unable to write response")
	}
}

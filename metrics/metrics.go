package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	registry *prometheus.Registry

	bytesReceived   prometheus.Counter
	framesDecoded   prometheus.Counter
	checksumInvalid prometheus.Counter
	bufferOverflows prometheus.Counter
	noiseBytes      prometheus.Counter
	reconnects      *prometheus.CounterVec
	forwardErrors   *prometheus.CounterVec
	sensorsKnown    prometheus.Gauge
	pressure        *prometheus.GaugeVec
	temperature     *prometheus.GaugeVec
	alarm           *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tpms_bytes_received_total",
			Help: "Total bytes read from the receiver.",
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tpms_frames_decoded_total",
			Help: "Total frames that passed the checksum.",
		}),
		checksumInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tpms_frames_checksum_invalid_total",
			Help: "Total frames dropped for a bad checksum.",
		}),
		bufferOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tpms_buffer_overflows_total",
			Help: "Total times the frame buffer was reset because it could not make progress.",
		}),
		noiseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tpms_noise_bytes_total",
			Help: "Total bytes skipped while resynchronizing to the frame header.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpms_source_reconnects_total",
			Help: "Total reconnects of the byte source by source name.",
		}, []string{"source"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpms_forward_errors_total",
			Help: "Total forwarder failures by forwarder.",
		}, []string{"forwarder"}),
		sensorsKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tpms_sensors_known",
			Help: "Number of sensors seen since start.",
		}),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpms_sensor_pressure_psi",
			Help: "Latest pressure by sensor.",
		}, []string{"sensor", "position"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpms_sensor_temperature_fahrenheit",
			Help: "Latest temperature by sensor.",
		}, []string{"sensor", "position"}),
		alarm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpms_sensor_alarm",
			Help: "1 while the sensor is in an alarm condition.",
		}, []string{"sensor", "position"}),
	}

	m.registry.MustRegister(
		m.bytesReceived,
		m.framesDecoded,
		m.checksumInvalid,
		m.bufferOverflows,
		m.noiseBytes,
		m.reconnects,
		m.forwardErrors,
		m.sensorsKnown,
		m.pressure,
		m.temperature,
		m.alarm,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchDroppedEvents exposes a counter maintained elsewhere.
func (m *Metrics) WatchDroppedEvents(fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "tpms_events_dropped_total",
		Help: "Total events dropped because a subscriber was not keeping up.",
	}, fn))
}

func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) FrameDecoded() {
	if m == nil {
		return
	}
	m.framesDecoded.Inc()
}

func (m *Metrics) ChecksumInvalid() {
	if m == nil {
		return
	}
	m.checksumInvalid.Inc()
}

func (m *Metrics) BufferOverflow() {
	if m == nil {
		return
	}
	m.bufferOverflows.Inc()
}

func (m *Metrics) Noise(n int) {
	if m == nil {
		return
	}
	m.noiseBytes.Add(float64(n))
}

func (m *Metrics) Reconnect(source string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(source).Inc()
}

func (m *Metrics) ForwardError(forwarder string) {
	if m == nil {
		return
	}
	m.forwardErrors.WithLabelValues(forwarder).Inc()
}

func (m *Metrics) SensorsKnown(n int) {
	if m == nil {
		return
	}
	m.sensorsKnown.Set(float64(n))
}

// ObserveSensor records the latest values of one sensor. A sensor that
// moved position gets its old series removed.
func (m *Metrics) ObserveSensor(id uint8, position, prevPosition string, pressure, temperature uint8, alarm bool) {
	if m == nil {
		return
	}
	sensor := strconv.Itoa(int(id))
	if prevPosition != "" && prevPosition != position {
		m.pressure.DeleteLabelValues(sensor, prevPosition)
		m.temperature.DeleteLabelValues(sensor, prevPosition)
		m.alarm.DeleteLabelValues(sensor, prevPosition)
	}
	m.pressure.WithLabelValues(sensor, position).Set(float64(pressure))
	m.temperature.WithLabelValues(sensor, position).Set(float64(temperature))
	v := 0.0
	if alarm {
		v = 1
	}
	m.alarm.WithLabelValues(sensor, position).Set(v)
}

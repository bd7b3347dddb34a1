package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	TransportSerial    = "serial"
	TransportBluetooth = "bluetooth"
	TransportSimulator = "simulator"
)

// BaudRates are the speeds the receiver can be configured for.
var BaudRates = []int{9600, 19200, 38400, 115200}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	LogLevel      string   `toml:"log_level"`
	SignalTimeout Duration `toml:"signal_timeout"`

	Transport  Transport  `toml:"transport"`
	Decoder    Decoder    `toml:"decoder"`
	Thresholds Thresholds `toml:"thresholds"`
	HTTP       HTTP       `toml:"http"`
	UDP        UDP        `toml:"udp"`
	MQTT       MQTT       `toml:"mqtt"`
	Kafka      Kafka      `toml:"kafka"`
	CAN        CAN        `toml:"can"`
}

type Transport struct {
	Type string `toml:"type"`

	// serial
	Port     string `toml:"port"`
	BaudRate int    `toml:"baud_rate"`

	// bluetooth
	Address string `toml:"address"`
	Channel int    `toml:"channel"`

	// simulator
	Sensors  int      `toml:"sensors"`
	Interval Duration `toml:"interval"`
	Seed     int64    `toml:"seed"`
}

type Decoder struct {
	// BufferFrames is the decoder buffer capacity in whole frames.
	BufferFrames int `toml:"buffer_frames"`
}

type Thresholds struct {
	TargetPressure              int     `toml:"target_pressure"`
	TargetTemperature           int     `toml:"target_temperature"`
	PressureDeviationPercent    float64 `toml:"pressure_deviation_percent"`
	TemperatureDeviationPercent float64 `toml:"temperature_deviation_percent"`
}

type HTTP struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type UDP struct {
	Enabled bool   `toml:"enabled"`
	Server  string `toml:"server"`
	Port    int    `toml:"port"`
}

type MQTT struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	Port        int    `toml:"port"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         int    `toml:"qos"`
}

type Kafka struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type CAN struct {
	Enabled   bool   `toml:"enabled"`
	Interface string `toml:"interface"`
}

func Default() Config {
	return Config{
		LogLevel:      "info",
		SignalTimeout: Duration{30 * time.Second},
		Transport: Transport{
			Type:     TransportSerial,
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
			Channel:  1,
			Sensors:  4,
			Interval: Duration{250 * time.Millisecond},
			Seed:     1,
		},
		Decoder: Decoder{
			BufferFrames: 4,
		},
		Thresholds: Thresholds{
			TargetPressure:              32,
			TargetTemperature:           75,
			PressureDeviationPercent:    15,
			TemperatureDeviationPercent: 20,
		},
		HTTP: HTTP{
			Enabled: true,
			Listen:  ":8080",
		},
		UDP: UDP{
			Server: "127.0.0.1",
			Port:   5000,
		},
		MQTT: MQTT{
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "tpms",
			TopicPrefix: "tpms",
			QoS:         1,
		},
		Kafka: Kafka{
			Brokers: []string{"localhost:9092"},
			Topic:   "tpms.alarms",
		},
		CAN: CAN{
			Interface: "can0",
		},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(fileName string) (Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return LoadFromReader(file)
}

func LoadFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to read config reader")
	}
	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unable to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.SignalTimeout.Duration <= 0 {
		return errors.Errorf("signal_timeout must be positive, got %v", c.SignalTimeout)
	}
	if err := c.Transport.Validate(); err != nil {
		return errors.Wrap(err, "transport")
	}
	if c.Decoder.BufferFrames < 1 {
		return errors.Errorf("decoder.buffer_frames must be at least 1, got %d", c.Decoder.BufferFrames)
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.listen is required when http is enabled")
	}
	if c.UDP.Enabled && (c.UDP.Server == "" || c.UDP.Port <= 0) {
		return errors.New("udp.server and udp.port are required when udp is enabled")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Port <= 0 {
			return errors.New("mqtt.broker and mqtt.port are required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errors.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.CAN.Enabled && c.CAN.Interface == "" {
		return errors.New("can.interface is required when can is enabled")
	}
	return nil
}

func (t Transport) Validate() error {
	switch t.Type {
	case TransportSerial:
		if t.Port == "" {
			return errors.New("serial port is required")
		}
		for _, b := range BaudRates {
			if b == t.BaudRate {
				return nil
			}
		}
		return errors.Errorf("unsupported baud rate %d (allowed: %v)", t.BaudRate, BaudRates)
	case TransportBluetooth:
		if t.Address == "" {
			return errors.New("bluetooth address is required")
		}
		if t.Channel < 1 || t.Channel > 30 {
			return errors.Errorf("rfcomm channel must be 1-30, got %d", t.Channel)
		}
	case TransportSimulator:
		if t.Sensors < 1 || t.Sensors > 255 {
			return errors.Errorf("simulator sensors must be 1-255, got %d", t.Sensors)
		}
		if t.Interval.Duration <= 0 {
			return errors.Errorf("simulator interval must be positive, got %v", t.Interval)
		}
	default:
		return errors.Errorf("unknown transport type %q (allowed: %s, %s, %s)",
			t.Type, TransportSerial, TransportBluetooth, TransportSimulator)
	}
	return nil
}

// Level parses LogLevel for logrus.
func (c Config) Level() (log.Level, error) {
	lvl, err := log.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return log.InfoLevel, errors.Wrapf(err, "invalid log_level %q", c.LogLevel)
	}
	return lvl, nil
}

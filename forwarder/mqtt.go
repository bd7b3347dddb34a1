package forwarder

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jd3nn1s/tpms"
	"github.com/jd3nn1s/tpms/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	mqttConnectWait    = 5 * time.Second
	mqttPublishTimeout = time.Second
	mqttQuiesce        = 250
)

type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// to allow testing
var newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
	return mqtt.NewClient(opts)
}

type sensorMessage struct {
	ID           uint8     `json:"id"`
	Position     string    `json:"position"`
	PositionName string    `json:"positionName"`
	PressurePSI  uint8     `json:"pressurePsi"`
	TemperatureF uint8     `json:"temperatureF"`
	Status       string    `json:"status"`
	Description  string    `json:"description"`
	Alarm        bool      `json:"alarm"`
	LastSignalAt time.Time `json:"lastSignalAt"`
}

type alarmMessage struct {
	ID           uint8     `json:"id"`
	Position     string    `json:"position"`
	Alarm        bool      `json:"alarm"`
	Status       string    `json:"status"`
	Announcement string    `json:"announcement"`
	At           time.Time `json:"at"`
}

// MQTTForwarder publishes every sensor as a retained message on
// <prefix>/sensors/<id> and alarm changes on <prefix>/alarms/<id>.
type MQTTForwarder struct {
	Config *config.MQTT

	client mqttClient
}

func NewMQTTForwarder(cfg config.MQTT) (*MQTTForwarder, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.WithField("broker", broker).Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithField("err", err).Warn("mqtt connection lost")
	})

	fwd := &MQTTForwarder{
		Config: &cfg,
		client: newMQTTClient(opts),
	}
	// with connect retry on, publishes are queued until the broker is up
	token := fwd.client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		log.WithField("broker", broker).Warn("mqtt broker not reachable yet, still trying")
	} else if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "unable to connect to mqtt broker %s", broker)
	}
	return fwd, nil
}

func (fwd *MQTTForwarder) Name() string {
	return "mqtt"
}

func (fwd *MQTTForwarder) Close() error {
	fwd.client.Disconnect(mqttQuiesce)
	return nil
}

func (fwd *MQTTForwarder) Forward(cur *tpms.SensorRecord, prev *tpms.SensorRecord) error {
	payload, err := json.Marshal(sensorMessage{
		ID:           cur.ID,
		Position:     cur.Position.ShortName(),
		PositionName: cur.Position.DisplayName(),
		PressurePSI:  cur.PressurePSI,
		TemperatureF: cur.TemperatureF,
		Status:       cur.Status.String(),
		Description:  cur.StatusDescription(),
		Alarm:        cur.IsAlarmCondition(),
		LastSignalAt: cur.LastSignalAt,
	})
	if err != nil {
		return errors.Wrap(err, "unable to marshal sensor")
	}
	if err := fwd.publish(fwd.topic("sensors", cur.ID), true, payload); err != nil {
		return err
	}

	if !alarmTransition(cur, prev) {
		return nil
	}
	payload, err = json.Marshal(alarmMessage{
		ID:           cur.ID,
		Position:     cur.Position.ShortName(),
		Alarm:        cur.IsAlarmCondition(),
		Status:       cur.Status.String(),
		Announcement: cur.AnnouncementText(),
		At:           cur.LastSignalAt,
	})
	if err != nil {
		return errors.Wrap(err, "unable to marshal alarm")
	}
	return fwd.publish(fwd.topic("alarms", cur.ID), false, payload)
}

func (fwd *MQTTForwarder) topic(kind string, id uint8) string {
	return fmt.Sprintf("%s/%s/%d", fwd.Config.TopicPrefix, kind, id)
}

func (fwd *MQTTForwarder) publish(topic string, retained bool, payload []byte) error {
	token := fwd.client.Publish(topic, byte(fwd.Config.QoS), retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	return errors.Wrapf(token.Error(), "unable to publish to %s", topic)
}

package forwarder

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jd3nn1s/tpms"
	"github.com/jd3nn1s/tpms/config"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const kafkaQueueSize = 64

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// to allow testing
var newKafkaWriter = func(cfg config.Kafka) kafkaWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaForwarder records alarm transitions on a topic keyed by sensor id, so
// the transitions of one sensor stay ordered within a partition.
type KafkaForwarder struct {
	Config *config.Kafka

	writer kafkaWriter
	queue  chan kafka.Message
}

func NewKafkaForwarder(cfg config.Kafka) (*KafkaForwarder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("no kafka topic configured")
	}
	return &KafkaForwarder{
		Config: &cfg,
		writer: newKafkaWriter(cfg),
		queue:  make(chan kafka.Message, kafkaQueueSize),
	}, nil
}

func (fwd *KafkaForwarder) Name() string {
	return "kafka"
}

func (fwd *KafkaForwarder) Close() error {
	return fwd.writer.Close()
}

func (fwd *KafkaForwarder) Forward(cur *tpms.SensorRecord, prev *tpms.SensorRecord) error {
	if !alarmTransition(cur, prev) {
		return nil
	}
	value, err := json.Marshal(alarmMessage{
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
	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(int(cur.ID))),
		Value: value,
		Time:  cur.LastSignalAt,
	}
	select {
	case fwd.queue <- msg:
		return nil
	default:
		return errors.Errorf("kafka queue full, alarm for sensor %d dropped", cur.ID)
	}
}

// Start writes queued alarms until ctx is done.
func (fwd *KafkaForwarder) Start(ctx context.Context) error {
	for {
		select {
		case msg := <-fwd.queue:
			if err := fwd.writer.WriteMessages(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithField("err", err).
					WithField("topic", fwd.Config.Topic).
					Error("unable to write alarm to kafka")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

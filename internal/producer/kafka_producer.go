package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/visittrack/internal/config"
)

// Topic names used as keys into KafkaConfig.Topics.
const (
	TopicInit     = "init"
	TopicTracking = "tracking"
)

type KafkaProducer struct {
	writers map[string]*kafka.Writer
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	writers := make(map[string]*kafka.Writer)
	for name, topic := range cfg.Topics {
		writers[name] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		}
	}

	return &KafkaProducer{
		writers: writers,
	}, nil
}

// Publish writes message as JSON to the named topic. Messages are keyed by
// visit uid so one visit always lands on one partition.
func (p *KafkaProducer) Publish(ctx context.Context, topic, visitUID string, message any) error {
	w, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("kafka: topic %q not configured", topic)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(visitUID),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	for _, w := range p.writers {
		w.Close()
	}
	return nil
}

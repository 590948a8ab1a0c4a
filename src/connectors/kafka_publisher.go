package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	logger "github.com/sirupsen/logrus"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlertPublisher writes priority alerts to a topic keyed by exception id,
// so alerts of one exception stay ordered on one partition.
type KafkaAlertPublisher struct {
	writer      MessageWriter
	topic       string
	maxAttempts int
}

func NewKafkaAlertPublisher(brokers []string, topic string) (*KafkaAlertPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return NewKafkaAlertPublisherWithWriter(w, topic), nil
}

func NewKafkaAlertPublisherWithWriter(w MessageWriter, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{writer: w, topic: topic, maxAttempts: 3}
}

func (p *KafkaAlertPublisher) BroadcastPriorityAlert(ctx context.Context, alert PriorityAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.ExceptionID),
		Value: value,
		Time:  alert.RaisedAt,
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"publisher":    "KafkaAlertPublisher",
			"topic":        p.topic,
			"exception_id": alert.ExceptionID,
			"attempt":      attempt,
		}).WithError(lastErr).Warn("Alert publish failed")

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("publish alert after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *KafkaAlertPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

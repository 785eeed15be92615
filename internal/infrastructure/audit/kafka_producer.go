// Package audit provides the AuditService implementations: a Kafka producer
// for deployments with a broker, and a logger sink for everything else.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cawinkelmann/rack-oauth2-server/internal/config"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// KafkaProducer publishes audit events to a Kafka topic.
type KafkaProducer struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewKafkaProducer creates a Kafka-backed audit sink. The writer connects
// lazily, so construction succeeds even when the brokers are unreachable;
// failures surface per event.
func NewKafkaProducer(cfg config.AuditConfig, log logger.Logger) (*KafkaProducer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaProducer{
		writer: writer,
		log:    log.WithComponent("audit"),
	}, nil
}

// LogEvent publishes one event, keyed by client so a client's events stay
// ordered within a partition.
func (p *KafkaProducer) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error(ctx, "marshal audit event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ClientID),
		Value: payload,
	})
	if err != nil {
		p.log.Error(ctx, "publish audit event", err,
			logger.String("event_id", event.EventID),
			logger.String("type", string(event.Type)))
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

var _ service.AuditService = (*KafkaProducer)(nil)

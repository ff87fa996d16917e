package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/logger"
	"gavel/pkg/metrics"
	"gavel/pkg/models"
	"gavel/pkg/retry"
)

type KafkaProducer struct {
	writer *kafka.Writer
	retry  retry.Policy
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval
	}
	if cfg.Retry.Multiplier > 0 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.Retry.MaxElapsedTime
	}

	return &KafkaProducer{writer: w, retry: policy, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg models.AdmittedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = retry.Retry(ctx, p.retry, func() error {
		return p.writer.WriteMessages(ctx,
			kafka.Message{
				Topic: topic,
				Key:   []byte(msg.From),
				Value: body,
				Time:  time.Now(),
			},
		)
	})

	if err != nil {
		metrics.BrokerPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.BrokerPublishTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

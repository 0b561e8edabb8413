package events

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic, key string, message []byte) error
}

type SaramaProducer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewSaramaProducer(brokers []string, logger *zap.Logger) (*SaramaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create sync producer: %w", err)
	}
	return NewProducerFrom(prod, logger), nil
}

func NewProducerFrom(prod sarama.SyncProducer, logger *zap.Logger) *SaramaProducer {
	return &SaramaProducer{producer: prod, logger: logger}
}

func (p *SaramaProducer) Publish(topic, key string, message []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("kafka send failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	p.logger.Debug("kafka message stored",
		zap.String("topic", topic), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(topic, key string, message []byte) error {
	p.Logger.Info("event", zap.String("topic", topic), zap.String("key", key), zap.ByteString("payload", message))
	return nil
}

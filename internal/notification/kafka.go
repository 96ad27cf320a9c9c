package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/domain/model"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaNotifier は注文IDをキーに通知イベントを発行する。
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}, nil
}

func (n *KafkaNotifier) PaymentCompleted(ctx context.Context, order model.Order) error {
	return n.publish(newEvent(EventPaymentCompleted, order))
}

func (n *KafkaNotifier) PaymentFailed(ctx context.Context, order model.Order) error {
	return n.publish(newEvent(EventPaymentFailed, order))
}

func (n *KafkaNotifier) publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		n.logger.Error("failed to send notification event",
			zap.Error(err),
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID))
		return fmt.Errorf("failed to send message: %w", err)
	}

	n.logger.Info("notification event sent",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

package tradelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SpotTradeBot/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits every trade log as a JSON message keyed by symbol,
// so that all trades of one symbol land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

func (p *KafkaPublisher) Append(ctx context.Context, entry *models.TradeLog) error {
	msg, err := encode(entry)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish trade log to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func encode(entry *models.TradeLog) (kafka.Message, error) {
	if entry == nil {
		return kafka.Message{}, errors.New("trade log cannot be nil")
	}
	v, err := json.Marshal(entry)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal trade log: %w", err)
	}
	return kafka.Message{
		Key:   []byte(entry.Symbol),
		Value: v,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "side", Value: []byte(entry.Side)},
		},
	}, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// Event is the wire form of a delivery notification published to Kafka.
type Event struct {
	Type          string    `json:"type"`
	DeliveryID    uint64    `json:"deliveryId"`
	TransporterID *uint64   `json:"transporterId,omitempty"`
	RecipientRole string    `json:"recipientRole"`
	Channel       string    `json:"channel"`
	Title         string    `json:"title,omitempty"`
	Body          string    `json:"body,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewConfig returns the producer settings used for delivery events.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 10 * time.Second
	return cfg
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	log.Printf("[events] kafka producer ready brokers=%v topic=%s", brokers, topic)
	return NewPublisherWithProducer(producer, topic), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

// Publish keys messages by delivery id so a delivery's events stay ordered
// within one partition.
func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(ev.DeliveryID, 10)),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("publish %s for delivery %d: %w", ev.Type, ev.DeliveryID, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

type noopPublisher struct{}

// NewNoopPublisher is used when no brokers are configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close() error                         { return nil }

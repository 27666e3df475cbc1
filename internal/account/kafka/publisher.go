// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package kafka publishes account lifecycle events to a Kafka topic.
// Events are JSON encoded and keyed by account ID so that all events for one
// account land on the same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/segmentio/kafka-go"

	"github.com/holomush/accounts/internal/account"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "account_events"

// DefaultWriteTimeout bounds a single publish.
const DefaultWriteTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements account.EventPublisher.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, oops.Code("EVENTS_CONFIG_INVALID").Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           DefaultWriteTimeout,
	}
	return newPublisher(w), nil
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, timeout: DefaultWriteTimeout}
}

// Publish writes event synchronously.
func (p *Publisher) Publish(ctx context.Context, event account.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return oops.Code("EVENTS_ENCODE_FAILED").With("event_type", string(event.Type)).Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return oops.Code("EVENTS_PUBLISH_FAILED").
			With("event_type", string(event.Type)).
			With("account_id", event.AccountID).
			Wrap(err)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return oops.Code("EVENTS_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

var _ account.EventPublisher = (*Publisher)(nil)

// Package queue implements the queue gateway (the specification's C5) and,
// in this file, an optional notifier that publishes batch lifecycle events
// to RabbitMQ so other systems (a status dashboard, an IRC echo bot) can
// react without polling the batch table themselves.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// BatchEvent is published whenever a batch reaches a new status. It carries
// enough to update an external view without a follow-up query back to the
// queue gateway.
type BatchEvent struct {
	BatchID   int64     `json:"batch_id"`
	OwnerUser string    `json:"owner_user"`
	Site      string    `json:"site"`
	Status    BatchStatus `json:"status"`
	At        time.Time `json:"at"`
}

// NotifierConfig points the notifier at a RabbitMQ server and queue.
type NotifierConfig struct {
	RabbitMQURL string
	QueueName   string
}

// EventPublisher defines the interface for publishing batch lifecycle
// events. Kept separate from the concrete RabbitMQ implementation so the
// scheduler can depend on an interface and run with no publisher at all
// when notifications aren't configured.
type EventPublisher interface {
	PublishBatchEvent(event BatchEvent) error
	Close() error
}

// RabbitMQNotifier publishes BatchEvents to a durable RabbitMQ queue.
type RabbitMQNotifier struct {
	connection AMQPConnection
	channel    AMQPChannel
	config     NotifierConfig
}

// NewRabbitMQNotifier connects to RabbitMQ and declares the configured queue
// as durable, so events survive a broker restart until consumed.
func NewRabbitMQNotifier(config NotifierConfig) (*RabbitMQNotifier, error) {
	return NewRabbitMQNotifierWithDialer(config, &RealAMQPDialer{})
}

// NewRabbitMQNotifierWithDialer allows injecting a fake dialer for testing.
func NewRabbitMQNotifierWithDialer(config NotifierConfig, dialer AMQPDialer) (*RabbitMQNotifier, error) {
	conn, err := dialer.Dial(config.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("queue: connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		config.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("queue: declare queue %s: %w", config.QueueName, err)
	}

	return &RabbitMQNotifier{connection: conn, channel: ch, config: config}, nil
}

// PublishBatchEvent serializes and publishes one batch lifecycle event to
// the configured queue via the default exchange.
func (n *RabbitMQNotifier) PublishBatchEvent(event BatchEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: marshal batch event: %w", err)
	}

	err = n.channel.Publish(
		"",
		n.config.QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("queue: publish batch event for batch %d: %w", event.BatchID, err)
	}
	return nil
}

// Close releases the channel and connection. Safe to call even if either is
// nil, which happens when construction failed partway through.
func (n *RabbitMQNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.connection != nil {
		n.connection.Close()
	}
	return nil
}

// NoopNotifier discards every event, used when no queue URL is configured.
type NoopNotifier struct{}

func (NoopNotifier) PublishBatchEvent(BatchEvent) error { return nil }
func (NoopNotifier) Close() error                       { return nil }

package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "clubportal.events.dlq"
)

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue for a specific routing key.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	queueName := fmt.Sprintf("%s.dlq", routingKey)

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(
		q.Name,
		routingKey,
		DLQExchangeName,
		false,
		nil,
	); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// EnsureDLQ declares the dead letter exchange and the queue for a routing
// key on the publisher's channel.
func (p *Publisher) EnsureDLQ(routingKey string) error {
	if err := DeclareDLQExchange(p.channel); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(p.channel, routingKey); err != nil {
		return err
	}
	return nil
}

// PublishToDLQ parks a poison message on the dead letter exchange with the
// original error recorded in the headers.
func (p *Publisher) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	headers := amqp091.Table{
		"x-original-error": originalError,
		"x-failed-at":      "notifier",
	}

	return p.channel.Publish(
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}

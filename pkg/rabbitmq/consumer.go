/**
 * @description
 * This package provides a reusable RabbitMQ client for the onboarding-service.
 * It simplifies the process of connecting to RabbitMQ, setting up exchanges
 * and queues, and consuming messages.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The Go client for RabbitMQ.
 * - log: For logging connection and channel errors.
 *
 * @notes
 * - It handles the setup of a topic exchange, a durable queue, and the
 *   bindings between them, which is a common pattern for microservice
 *   eventing.
 * - The `Consume` method takes a handler function as an argument. The handler
 *   returns true to acknowledge the message and false to re-queue it, so
 *   transient failures are retried while permanent ones are dropped by the
 *   handler itself.
 */
package rabbitmq

import (
	"context"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer holds the connection and channel for RabbitMQ.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer creates and returns a new RabbitMQ consumer.
func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Limit unacknowledged deliveries so a slow handler does not buffer the
	// whole queue in memory.
	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// Consume starts listening for messages on a durable queue bound to a topic
// exchange under one or more routing keys. It blocks until the context is
// cancelled or the channel is closed.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName string, routingKeys []string, handler func(body []byte) bool) error {
	err := c.ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return err
	}

	// Durable queue so messages survive a consumer restart.
	q, err := c.ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	for _, key := range routingKeys {
		if err := c.ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack is false, we will manually acknowledge
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return amqp.ErrClosed
			}
			log.Printf("Received a message with routing key: %s", d.RoutingKey)
			if handler(d.Body) {
				d.Ack(false)
			} else {
				log.Printf("Handler failed to process message. Re-queuing.")
				d.Nack(false, true)
			}
		}
	}
}

// Close closes the RabbitMQ channel and connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

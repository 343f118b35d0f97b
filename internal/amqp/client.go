// Package amqp carries occurrence-created events between the API server and
// the export worker over RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Client wraps a single connection and channel bound to the occurrence
// exchange. Publishing and consuming share the same topology, so either
// side can come up first.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
}

func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Client{conn: conn, channel: ch, exchange: exchange, queue: queue}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// declareTopology sets up a durable direct exchange with one durable queue
// bound under the queue name as routing key.
func (c *Client) declareTopology() error {
	if err := c.channel.ExchangeDeclare(c.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.queue, err)
	}
	return nil
}

// PublishOccurrenceCreated announces a newly recorded occurrence. The
// delivery is persistent so a worker restart does not lose exports.
func (c *Client) PublishOccurrenceCreated(ctx context.Context, expenseID, groupID string) error {
	body, err := NewOccurrenceCreatedMessage(expenseID, groupID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal occurrence message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := c.channel.PublishWithContext(ctx, c.exchange, c.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish occurrence message: %w", err)
	}

	slog.InfoContext(ctx, "Published occurrence created message",
		"expense_id", expenseID, "exchange", c.exchange)
	return nil
}

// ConsumeOccurrences delivers occurrence messages to handler until ctx is
// cancelled. Undecodable messages are dropped; handler failures requeue the
// delivery.
func (c *Client) ConsumeOccurrences(ctx context.Context, handler func(*OccurrenceCreatedMessage) error) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming from %s: %w", c.queue, err)
	}
	slog.InfoContext(ctx, "Consuming occurrence messages", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping consumer", "reason", ctx.Err())
			return ctx.Err()
		case d, open := <-deliveries:
			if !open {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(ctx, d, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, d amqp091.Delivery, handler func(*OccurrenceCreatedMessage) error) {
	msg, err := OccurrenceCreatedMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping undecodable message", "error", err)
		d.Nack(false, false)
		return
	}
	if err := handler(msg); err != nil {
		slog.ErrorContext(ctx, "Handler failed, requeueing",
			"error", err, "expense_id", msg.ExpenseID)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
	slog.InfoContext(ctx, "Processed occurrence message", "expense_id", msg.ExpenseID)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
